package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/bms-stand/internal/archive"
	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/models"
	"github.com/wfunc/bms-stand/internal/report"
	"github.com/wfunc/bms-stand/internal/repository"
	"github.com/wfunc/bms-stand/internal/service"
	"github.com/wfunc/bms-stand/internal/stand"
	ws "github.com/wfunc/bms-stand/internal/websocket"
	"go.uber.org/zap"
)

// fakeStand 固定状态
type fakeStand struct {
	status *stand.Status
	err    error
}

func (f *fakeStand) Status(context.Context) (*stand.Status, error) {
	return f.status, f.err
}

// RouterTestSuite 监控接口测试套件
type RouterTestSuite struct {
	suite.Suite
	dir      string
	services *service.Services
	stand    *fakeStand
	hub      *ws.Hub
	router   *Router
	token    string
	cancel   context.CancelFunc
	hubDone  chan struct{}
}

func (suite *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.dir = suite.T().TempDir()

	store, err := credentials.Open(filepath.Join(suite.dir, "users.json"), nil)
	suite.Require().NoError(err)
	db := repository.SetupTestDB(suite.T())
	suite.services = service.NewServices(store, nil, repository.NewManager(db), service.DefaultConfig(), zap.NewNop())

	reports := filepath.Join(suite.dir, "reports")
	suite.Require().NoError(os.MkdirAll(reports, 0755))
	index := archive.NewIndex(reports, suite.services.History, "", zap.NewNop())

	suite.stand = &fakeStand{status: &stand.Status{Mode: "emulator", Connected: true, Text: stand.StatusWaiting}}
	suite.hub = ws.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	suite.hubDone = make(chan struct{})
	go func() {
		suite.hub.Run(ctx)
		close(suite.hubDone)
	}()

	suite.router = NewRouter(Deps{
		Services: suite.services,
		Stand:    suite.stand,
		Archive:  index,
		Hub:      suite.hub,
		Logger:   zap.NewNop(),
	})

	resp := suite.request(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"user_id": credentials.DefaultUserID, "password": credentials.DefaultPassword}, false)
	suite.Require().Equal(http.StatusOK, resp.Code, resp.Body.String())
	var auth service.AuthResponse
	suite.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &auth))
	suite.token = auth.AccessToken
}

func (suite *RouterTestSuite) TearDownTest() {
	suite.cancel()
	<-suite.hubDone
	suite.services.History.Close()
}

func (suite *RouterTestSuite) request(method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+suite.token)
	}
	w := httptest.NewRecorder()
	suite.router.Handler().ServeHTTP(w, req)
	return w
}

func (suite *RouterTestSuite) decode(w *httptest.ResponseRecorder, out interface{}) {
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), out))
}

func (suite *RouterTestSuite) errorCode(w *httptest.ResponseRecorder) errors.ErrorCode {
	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code  errors.ErrorCode `json:"code"`
			Stack []interface{}    `json:"stack"`
		} `json:"error"`
	}
	suite.decode(w, &resp)
	suite.False(resp.Success)
	suite.Empty(resp.Error.Stack)
	return resp.Error.Code
}

// writeReport 在归档中放一个协议并登记哈希
func (suite *RouterTestSuite) writeReport(name, content string) string {
	path := filepath.Join(suite.dir, "reports", name)
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0644))
	digest, err := report.HashFile(path)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.services.History.RecordReport(context.Background(), &models.ReportRecord{
		Filename:    name,
		Path:        path,
		Digest:      digest,
		GeneratedAt: time.Now(),
	}))
	return path
}

func (suite *RouterTestSuite) TestHealth() {
	w := suite.request(http.MethodGet, "/health", nil, false)
	suite.Equal(http.StatusOK, w.Code)
	var body map[string]interface{}
	suite.decode(w, &body)
	suite.Equal("ok", body["status"])
	suite.Contains(body, "subscribers")
	suite.NotContains(body, "database")

	up := false
	router := NewRouter(Deps{Services: suite.services, Stand: suite.stand, DatabaseUp: func() bool { return up }})
	for _, want := range []string{"down", "up"} {
		rec := httptest.NewRecorder()
		router.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		suite.Require().Equal(http.StatusOK, rec.Code)
		suite.decode(rec, &body)
		suite.Equal(want, body["database"])
		up = true
	}
}

func (suite *RouterTestSuite) TestLoginFailures() {
	w := suite.request(http.MethodPost, "/api/v1/auth/login", map[string]string{"user_id": "Default"}, false)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal(errors.ErrInvalidParam, suite.errorCode(w))

	w = suite.request(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"user_id": "Default", "password": "wrong"}, false)
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal(errors.ErrAuthentication, suite.errorCode(w))
}

func (suite *RouterTestSuite) TestLoginLockout() {
	wrong := map[string]string{"user_id": credentials.DefaultUserID, "password": "wrong"}
	for i := 0; i < 2; i++ {
		w := suite.request(http.MethodPost, "/api/v1/auth/login", wrong, false)
		suite.Equal(http.StatusUnauthorized, w.Code)
	}
	w := suite.request(http.MethodPost, "/api/v1/auth/login", wrong, false)
	suite.Equal(http.StatusTooManyRequests, w.Code)
	suite.Equal(errors.ErrLoginLockout, suite.errorCode(w))

	w = suite.request(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"user_id": credentials.DefaultUserID, "password": credentials.DefaultPassword}, false)
	suite.Equal(http.StatusTooManyRequests, w.Code)
}

func (suite *RouterTestSuite) TestRefresh() {
	login, err := suite.services.Auth.Login(context.Background(),
		&service.LoginRequest{UserID: credentials.DefaultUserID, Password: credentials.DefaultPassword})
	suite.Require().NoError(err)

	w := suite.request(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": login.RefreshToken}, false)
	suite.Require().Equal(http.StatusOK, w.Code)
	var resp service.AuthResponse
	suite.decode(w, &resp)
	suite.NotEmpty(resp.AccessToken)
	suite.Equal("Bearer", resp.TokenType)

	w = suite.request(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": login.AccessToken}, false)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *RouterTestSuite) TestStatusRequiresAuth() {
	w := suite.request(http.MethodGet, "/api/v1/status", nil, false)
	suite.Equal(http.StatusUnauthorized, w.Code)

	w = suite.request(http.MethodGet, "/api/v1/status", nil, true)
	suite.Require().Equal(http.StatusOK, w.Code)
	var st stand.Status
	suite.decode(w, &st)
	suite.True(st.Connected)
	suite.Equal(stand.StatusWaiting, st.Text)
}

func (suite *RouterTestSuite) TestStatusStopped() {
	suite.stand.err = errors.New(errors.ErrCanceled)
	w := suite.request(http.MethodGet, "/api/v1/status", nil, true)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal(errors.ErrCanceled, suite.errorCode(w))
}

func (suite *RouterTestSuite) TestReportsFilter() {
	suite.writeReport("report_BMS_Test_SN001_20240101_120000.pdf", "first")
	suite.writeReport("report_BMS_Test_SN001_20240315_093000.pdf", "second")
	suite.writeReport("report_BMS_Test_SN777_20240315_100000.pdf", "third")

	w := suite.request(http.MethodGet, "/api/v1/reports?serial=sn001&date=20240315", nil, true)
	suite.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Items []archive.Entry `json:"items"`
		Total int             `json:"total"`
	}
	suite.decode(w, &resp)
	suite.Equal(1, resp.Total)
	suite.Equal("report_BMS_Test_SN001_20240315_093000.pdf", resp.Items[0].Name)

	w = suite.request(http.MethodGet, "/api/v1/reports", nil, true)
	suite.decode(w, &resp)
	suite.Equal(3, resp.Total)
}

func (suite *RouterTestSuite) TestDownload() {
	suite.writeReport("report_A_1_20240101_120000.pdf", "%PDF-1.3 body")

	w := suite.request(http.MethodGet, "/api/v1/reports/report_A_1_20240101_120000.pdf", nil, true)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Equal("%PDF-1.3 body", w.Body.String())
	suite.Contains(w.Header().Get("Content-Disposition"), "report_A_1_20240101_120000.pdf")

	w = suite.request(http.MethodGet, "/api/v1/reports/missing.pdf", nil, true)
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal(errors.ErrNotFound, suite.errorCode(w))

	w = suite.request(http.MethodGet, "/api/v1/reports/..", nil, true)
	suite.NotEqual(http.StatusOK, w.Code)
}

func (suite *RouterTestSuite) TestVerify() {
	path := suite.writeReport("report_A_1_20240101_120000.pdf", "original")

	w := suite.request(http.MethodGet, "/api/v1/reports/report_A_1_20240101_120000.pdf/verify", nil, true)
	suite.Require().Equal(http.StatusOK, w.Code)
	var v archive.Verification
	suite.decode(w, &v)
	suite.True(v.Valid)
	suite.Equal("database", v.Source)

	suite.Require().NoError(os.WriteFile(path, []byte("tampered"), 0644))
	w = suite.request(http.MethodGet, "/api/v1/reports/report_A_1_20240101_120000.pdf/verify", nil, true)
	suite.Require().Equal(http.StatusConflict, w.Code)
	suite.decode(w, &v)
	suite.False(v.Valid)
	suite.NotEqual(v.Expected, v.Actual)
}

func (suite *RouterTestSuite) TestRuns() {
	ctx := context.Background()
	now := time.Now()
	suite.Require().NoError(suite.services.History.RecordRun(ctx, repository.CreateTestRun("run-1", "Default", true, now.Add(-time.Minute))))
	suite.Require().NoError(suite.services.History.RecordRun(ctx, repository.CreateTestRun("run-2", "Default", false, now)))

	w := suite.request(http.MethodGet, "/api/v1/runs?passed=false", nil, true)
	suite.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Items   []models.TestRunRecord `json:"items"`
		Total   int64                  `json:"total"`
		Page    int                    `json:"page"`
		History bool                   `json:"history"`
	}
	suite.decode(w, &resp)
	suite.Equal(int64(1), resp.Total)
	suite.Equal("run-2", resp.Items[0].RunID)
	suite.Equal(1, resp.Page)
	suite.True(resp.History)

	w = suite.request(http.MethodGet, "/api/v1/runs/stats", nil, true)
	suite.Require().Equal(http.StatusOK, w.Code)
	var stats repository.TestRunStats
	suite.decode(w, &stats)
	suite.Equal(int64(2), stats.Total)
	suite.Equal(int64(1), stats.Failed)
}

func (suite *RouterTestSuite) TestDeviceEventsValidation() {
	w := suite.request(http.MethodGet, "/api/v1/device/events?kind=bogus", nil, true)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.request(http.MethodGet, "/api/v1/device/events?limit=-1", nil, true)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.request(http.MethodGet, "/api/v1/device/events?kind=test", nil, true)
	suite.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Items []models.DeviceEvent `json:"items"`
	}
	suite.decode(w, &resp)
	suite.NotNil(resp.Items)
}

// 设备诊断只对管理员开放
func (suite *RouterTestSuite) TestDeviceEventsAdminOnly() {
	ctx := context.Background()
	_, err := suite.services.User.AddUser(ctx, credentials.DefaultUserID, &service.AddUserRequest{
		UserID: "sidorov", LastName: "Сидоров", FirstName: "Сидор",
		Password: "pw", ConfirmPassword: "pw",
	})
	suite.Require().NoError(err)
	login, err := suite.services.Auth.Login(ctx, &service.LoginRequest{UserID: "sidorov", Password: "pw"})
	suite.Require().NoError(err)

	adminToken := suite.token
	suite.token = login.AccessToken
	defer func() { suite.token = adminToken }()

	w := suite.request(http.MethodGet, "/api/v1/device/events", nil, true)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal(errors.ErrAuthorization, suite.errorCode(w))

	// 操作员仍可查看状态
	w = suite.request(http.MethodGet, "/api/v1/status", nil, true)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *RouterTestSuite) TestWebSocketFeed() {
	srv := httptest.NewServer(suite.router.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().Error(err)
	suite.Equal(http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+suite.token, nil)
	suite.Require().NoError(err)
	defer conn.Close()

	read := func() ws.Message {
		suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		_, data, err := conn.ReadMessage()
		suite.Require().NoError(err)
		var msg ws.Message
		suite.Require().NoError(json.Unmarshal(data, &msg))
		return msg
	}

	suite.Equal(ws.MessageTypeConnected, read().Type)
	suite.hub.Publish(stand.MessageTestCompleted, map[string]string{"run_id": "run-9"})
	msg := read()
	suite.Equal(stand.MessageTestCompleted, msg.Type)
	suite.JSONEq(`{"run_id":"run-9"}`, string(msg.Data))
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
