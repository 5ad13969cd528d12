package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/wfunc/bms-stand/internal/archive"
	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/models"
	"github.com/wfunc/bms-stand/internal/report"
	"github.com/wfunc/bms-stand/internal/service"
	"github.com/wfunc/bms-stand/internal/stand"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Stand 操作台使用的试验台操作
type Stand interface {
	SetOperator(ctx context.Context, user *credentials.User) error
	Status(ctx context.Context) (*stand.Status, error)
	Reset(ctx context.Context) error
	GenerateReport(ctx context.Context, systemName, serialNumber string) (*report.Artifact, error)
}

// Archive 协议归档
type Archive interface {
	List(serialFilter, dateFilter string) ([]string, error)
	Verify(ctx context.Context, name string) (*archive.Verification, error)
}

// Options 操作台依赖
type Options struct {
	Title   string
	In      io.Reader
	Out     io.Writer
	Auth    service.AuthService
	Users   service.UserService
	Stand   Stand
	Archive Archive
	Logger  *zap.Logger

	// ReadPassword 为空且输入是终端时使用 term.ReadPassword
	ReadPassword func() (string, error)
}

// Console 终端操作台，扮演界面线程的角色
type Console struct {
	title        string
	in           *bufio.Reader
	out          io.Writer
	outMu        sync.Mutex
	readPassword func() (string, error)

	auth    service.AuthService
	users   service.UserService
	stand   Stand
	archive Archive
	logger  *zap.Logger

	user *credentials.User
}

// New 创建操作台
func New(opts Options) *Console {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Title == "" {
		opts.Title = "Стенд электрических испытаний СКУ ЛИАБ"
	}

	c := &Console{
		title:        opts.Title,
		in:           bufio.NewReader(opts.In),
		out:          opts.Out,
		readPassword: opts.ReadPassword,
		auth:         opts.Auth,
		users:        opts.Users,
		stand:        opts.Stand,
		archive:      opts.Archive,
		logger:       opts.Logger,
	}
	if c.readPassword == nil {
		if f, ok := opts.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fd := int(f.Fd())
			c.readPassword = func() (string, error) {
				b, err := term.ReadPassword(fd)
				return string(b), err
			}
		}
	}
	return c
}

// User 当前登录用户
func (c *Console) User() *credentials.User {
	return c.user
}

// Publish 实现 stand.Publisher，在终端上提示设备事件
func (c *Console) Publish(msgType string, data interface{}) {
	switch msgType {
	case stand.MessageConnectivity:
		ev, ok := data.(*models.DeviceEvent)
		if !ok {
			return
		}
		if ev.Success {
			c.printf("\n[*] Устройство подключено. Ожидание результатов испытаний...\n")
		} else {
			c.printf("\n[!] Устройство не подключено: %s\n", ev.Error)
		}
	case stand.MessageTestCompleted:
		c.printf("\n[*] Результаты получены. Выберите пункт 1 для просмотра.\n")
	}
}

func (c *Console) printf(format string, args ...interface{}) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) println(args ...interface{}) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, args...)
}

// readLine 读取一行，输入关闭时返回 ErrCanceled
func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		if err == io.EOF {
			return "", errors.New(errors.ErrCanceled, "ввод закрыт")
		}
		return "", errors.Wrap(err, errors.ErrCanceled)
	}
	return strings.TrimSpace(line), nil
}

// prompt 输出提示并读取一行
func (c *Console) prompt(text string) (string, error) {
	c.printf("%s ", text)
	return c.readLine()
}

// password 读取密码，终端上不回显
func (c *Console) password(text string) (string, error) {
	c.printf("%s ", text)
	if c.readPassword == nil {
		return c.readLine()
	}
	pw, err := c.readPassword()
	c.println()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCanceled)
	}
	return pw, nil
}

// confirm 是/否确认，默认否
func (c *Console) confirm(question string) (bool, error) {
	answer, err := c.prompt(question + " [д/н]:")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "д", "да", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// showError 向操作员显示错误
func (c *Console) showError(err error) {
	if !errors.IsValidation(err) {
		c.logger.Warn("操作失败", zap.Error(err))
	}
	c.println("Ошибка:", message(err))
}

// message 取错误的可读部分
func message(err error) string {
	if appErr, ok := err.(*errors.AppError); ok {
		if appErr.Details != "" {
			return appErr.Details
		}
		return appErr.Message
	}
	return err.Error()
}
