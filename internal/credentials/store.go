package credentials

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/utils"
	"go.uber.org/zap"
)

// 默认身份与默认值
const (
	DefaultUserID   = "Default"
	DefaultPassword = "admin"
	DefaultTestArea = "Участок 1"
)

// Role 用户角色
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// User 操作员账户
type User struct {
	ID           string `json:"-"`
	LastName     string `json:"lastname"`
	FirstName    string `json:"firstname"`
	MiddleName   string `json:"middlename"`
	PasswordHash string `json:"password"`
	Role         Role   `json:"role"`
}

// IsAdmin 是否管理员
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// FullName 姓 名 父称
func (u User) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.LastName, u.FirstName, u.MiddleName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return u.ID
	}
	return strings.Join(parts, " ")
}

// ShortName 报告签名用的缩写，形如 "Иванов И.И."
func (u User) ShortName() string {
	last := strings.TrimSpace(u.LastName)
	if last == "" {
		return u.ID
	}
	var b strings.Builder
	b.WriteString(last)
	initials := ""
	for _, p := range []string{u.FirstName, u.MiddleName} {
		if r := []rune(strings.TrimSpace(p)); len(r) > 0 {
			initials += string(r[0]) + "."
		}
	}
	if initials != "" {
		b.WriteString(" ")
		b.WriteString(initials)
	}
	return b.String()
}

// fileData users.json 的磁盘格式
type fileData struct {
	Users        map[string]User `json:"users"`
	TestAreaName string          `json:"test_area_name"`
}

// Store 基于JSON文件的凭据存储
type Store struct {
	mu       sync.RWMutex
	path     string
	users    map[string]User
	testArea string
	logger   *zap.Logger
}

// Open 打开凭据文件，文件缺失、为空或损坏时写入默认管理员，其他读取错误直接返回
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{path: path, logger: log}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path 凭据文件路径
func (s *Store) Path() string {
	return s.path
}

// Load 从磁盘重新读取凭据
func (s *Store) Load() error {
	data, err := s.read()
	bootstrap := false
	switch {
	case err == nil:
		bootstrap = len(data.Users) == 0
	case os.IsNotExist(err) || malformed(err):
		s.logger.Warn("凭据文件不可用，使用默认管理员", zap.String("path", s.path), zap.Error(err))
		bootstrap = true
	default:
		// 其他读取错误不覆盖文件
		return errors.Wrap(err, errors.ErrFileRead, "读取凭据文件失败")
	}

	if bootstrap {
		area := DefaultTestArea
		if data != nil && strings.TrimSpace(data.TestAreaName) != "" {
			area = data.TestAreaName
		}
		data = &fileData{
			Users: map[string]User{
				DefaultUserID: {
					PasswordHash: utils.HashSHA256(DefaultPassword),
					Role:         RoleAdmin,
				},
			},
			TestAreaName: area,
		}
	}
	if strings.TrimSpace(data.TestAreaName) == "" {
		data.TestAreaName = DefaultTestArea
	}

	users := make(map[string]User, len(data.Users))
	for id, u := range data.Users {
		u.ID = id
		if u.Role == "" {
			u.Role = RoleOperator
		}
		users[id] = u
	}

	s.mu.Lock()
	s.users = users
	s.testArea = data.TestAreaName
	s.mu.Unlock()

	if bootstrap {
		return s.Save()
	}
	return nil
}

// malformed 文件内容不是有效的凭据JSON
func malformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return stderrors.As(err, &syntaxErr) || stderrors.As(err, &typeErr)
}

func (s *Store) read() (*fileData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	data := &fileData{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Save 写回磁盘（临时文件 + 重命名）
func (s *Store) Save() error {
	s.mu.RLock()
	data := fileData{
		Users:        make(map[string]User, len(s.users)),
		TestAreaName: s.testArea,
	}
	for id, u := range s.users {
		data.Users[id] = u
	}
	s.mu.RUnlock()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrFileWrite, "序列化凭据失败")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, errors.ErrFileWrite, "创建凭据目录失败")
	}
	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return errors.Wrap(err, errors.ErrFileWrite, "创建临时文件失败")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrFileWrite, s.path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrFileWrite, s.path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrFileWrite, s.path)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, errors.ErrFileWrite, s.path)
	}
	return nil
}

// Get 按标识获取用户
func (s *Store) Get(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// IDs 按字典序返回全部用户标识
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Users 按标识排序返回全部用户
func (s *Store) Users() []User {
	ids := s.IDs()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Add 新增用户并持久化
func (s *Store) Add(u User) error {
	s.mu.Lock()
	if _, exists := s.users[u.ID]; exists {
		s.mu.Unlock()
		return errors.Newf(errors.ErrAlreadyExists, "пользователь %s уже существует", u.ID)
	}
	if u.Role == "" {
		u.Role = RoleOperator
	}
	s.users[u.ID] = u
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		s.mu.Lock()
		delete(s.users, u.ID)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Delete 删除用户并持久化，默认用户受保护
func (s *Store) Delete(id string) error {
	if id == DefaultUserID {
		return errors.New(errors.ErrProtectedUser)
	}
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return errors.Newf(errors.ErrNotFound, "пользователь %s не найден", id)
	}
	delete(s.users, id)
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		s.mu.Lock()
		s.users[id] = u
		s.mu.Unlock()
		return err
	}
	return nil
}

// TestArea 当前测试区域名称
func (s *Store) TestArea() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.testArea
}

// SetTestArea 修改测试区域名称并持久化
func (s *Store) SetTestArea(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New(errors.ErrInvalidParam, "название участка не может быть пустым")
	}
	s.mu.Lock()
	old := s.testArea
	s.testArea = name
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		s.mu.Lock()
		s.testArea = old
		s.mu.Unlock()
		return err
	}
	return nil
}
