package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/incentive/config"
	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

type inboxMailer struct {
	mu   sync.Mutex
	last map[string]string
}

func (m *inboxMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		m.last = map[string]string{}
	}
	m.last[to] = body
	return nil
}

func (m *inboxMailer) code(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range strings.Fields(m.last[to]) {
		f = strings.TrimSuffix(f, ".")
		if len(f) == 6 && strings.Trim(f, "0123456789") == "" {
			return f
		}
	}
	t.Fatalf("no code mailed to %s", to)
	return ""
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	mailer *inboxMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	config.Set(config.AppConfig{
		JWTSecret:   "router-test-secret",
		GinMode:     "test",
		GinPath:     filepath.Join(dir, "gin.log"),
		AdminEmails: []string{"boss@corp.test"},
		RedisHost:   "127.0.0.1",
		RedisPort:   1,
		DatabaseURI: "sqlite:" + filepath.Join(dir, "api.db"),
		LogLevel:    "silent",
	})

	db, err := config.Open(config.Get())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := config.Migrate(db, models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mailer := &inboxMailer{}
	clock := utils.NewFakeClock(time.Date(2026, time.March, 11, 12, 0, 0, 0, time.UTC))
	engine := services.NewEngine(db, clock, services.DefaultRules(), services.EngineOptions{
		Mailer:  mailer,
		IsAdmin: config.Get().IsAdminEmail,
		Log:     zap.NewNop(),
	})
	if err := engine.Jobs.RegisterAll(engine.Scheduler, services.DefaultJobTimes(time.UTC), nil); err != nil {
		t.Fatalf("register jobs: %v", err)
	}
	return &testServer{router: SetupRouter(db, engine), db: db, mailer: mailer}
}

func (s *testServer) call(t *testing.T, method, path, bearer string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return out
}

// onboard walks an email through code verification, token issuance and registration.
func (s *testServer) onboard(t *testing.T, email, password string) (uint, string) {
	t.Helper()
	if code, env := s.call(t, http.MethodPost, "/api/v1/auth/otp/request", "", gin.H{"email": email}); code != http.StatusOK {
		t.Fatalf("otp request: %d %+v", code, env)
	}
	if code, env := s.call(t, http.MethodPost, "/api/v1/auth/otp/verify", "", gin.H{"email": email, "code": s.mailer.code(t, email)}); code != http.StatusOK {
		t.Fatalf("otp verify: %d %+v", code, env)
	}
	code, env := s.call(t, http.MethodPost, "/api/v1/auth/token", "", gin.H{"email": email})
	if code != http.StatusOK {
		t.Fatalf("issue token: %d %+v", code, env)
	}
	issued := decode[struct {
		Token           string `json:"token"`
		IssuedThisMonth int    `json:"issued_this_month"`
	}](t, env)
	if !strings.HasPrefix(issued.Token, "GV") || issued.IssuedThisMonth != 1 {
		t.Fatalf("issued %+v", issued)
	}
	code, env = s.call(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": email, "token": issued.Token, "display_name": "Worker", "password": password,
	})
	if code != http.StatusCreated {
		t.Fatalf("register: %d %+v", code, env)
	}
	user := decode[struct {
		ID uint `json:"id"`
	}](t, env)
	return user.ID, issued.Token
}

func (s *testServer) login(t *testing.T, email, password, token string) (int, envelope) {
	t.Helper()
	return s.call(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password, "token": token})
}

func TestAccountLifecycle(t *testing.T) {
	s := newTestServer(t)
	const email, password = "worker@corp.test", "secret-pass"
	userID, token := s.onboard(t, email, password)

	code, env := s.login(t, email, password, token)
	if code != http.StatusOK {
		t.Fatalf("login: %d %+v", code, env)
	}
	jwt := decode[struct {
		Token string `json:"token"`
	}](t, env).Token

	code, env = s.call(t, http.MethodPost, "/api/v1/activity/heartbeat", jwt, gin.H{"minutes": 5})
	if code != http.StatusOK {
		t.Fatalf("heartbeat: %d %+v", code, env)
	}
	beat := decode[struct {
		Minutes int `json:"minutes"`
	}](t, env)
	if beat.Minutes != 5 {
		t.Fatalf("minutes = %d", beat.Minutes)
	}
	if code, _ := s.call(t, http.MethodPost, "/api/v1/activity/heartbeat", jwt, gin.H{"minutes": 61}); code != http.StatusBadRequest {
		t.Fatalf("oversized heartbeat status = %d", code)
	}

	code, env = s.call(t, http.MethodGet, "/api/v1/points", jwt, nil)
	balance := decode[struct {
		Points int `json:"points"`
	}](t, env)
	if code != http.StatusOK || balance.Points != 0 {
		t.Fatalf("points: %d %s", code, env.Data)
	}

	if code, _ := s.call(t, http.MethodGet, "/api/v1/admin/jobs", jwt, nil); code != http.StatusForbidden {
		t.Fatalf("employee reached admin route: %d", code)
	}

	admin, err := utils.GenerateToken(9999, "boss@corp.test", models.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	code, env = s.call(t, http.MethodGet, "/api/v1/admin/jobs", admin, nil)
	jobs := decode[struct {
		Items []string `json:"items"`
	}](t, env)
	if code != http.StatusOK || len(jobs.Items) != 4 {
		t.Fatalf("jobs: %d %s", code, env.Data)
	}
	if code, _ := s.call(t, http.MethodPost, "/api/v1/admin/jobs/nope/run", admin, nil); code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d", code)
	}
	if code, env := s.call(t, http.MethodPost, "/api/v1/admin/jobs/weekly-leaderboard/run", admin, nil); code != http.StatusConflict || env.Code != 40906 {
		t.Fatalf("midweek leaderboard: %d %+v", code, env)
	}
	if code, env := s.call(t, http.MethodPost, "/api/v1/admin/users/4242/token/disable", admin, gin.H{"reason": "x"}); code != http.StatusNotFound || env.Code != 40401 {
		t.Fatalf("disable unknown user: %d %+v", code, env)
	}
	if code, _ := s.call(t, http.MethodPost, "/api/v1/admin/users/4242/token/reactivate", admin, nil); code != http.StatusNotFound {
		t.Fatalf("reactivate unknown user status = %d", code)
	}

	path := fmt.Sprintf("/api/v1/admin/users/%d/token/disable", userID)
	if code, env := s.call(t, http.MethodPost, path, admin, gin.H{"reason": "manual review"}); code != http.StatusOK {
		t.Fatalf("disable: %d %+v", code, env)
	}
	code, env = s.login(t, email, password, token)
	if code != http.StatusForbidden || env.Code != 40310 {
		t.Fatalf("disabled login: %d %+v", code, env)
	}
	details := decode[struct {
		DisabledAt string `json:"disabled_at"`
		Reason     string `json:"reason"`
	}](t, env)
	if details.Reason != "manual review" || details.DisabledAt == "" {
		t.Fatalf("disabled details %+v", details)
	}

	code, env = s.call(t, http.MethodPost, "/api/v1/inbox", "", gin.H{"email": email, "reason": "I was on leave"})
	if code != http.StatusCreated {
		t.Fatalf("inbox: %d %+v", code, env)
	}
	reportID := decode[struct {
		ID uint `json:"id"`
	}](t, env).ID
	code, env = s.call(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/inbox/%d/resolve", reportID), admin, gin.H{"note": "ok"})
	resolved := decode[struct {
		Reactivated bool `json:"reactivated"`
	}](t, env)
	if code != http.StatusOK || !resolved.Reactivated {
		t.Fatalf("resolve: %d %s", code, env.Data)
	}

	if code, env := s.login(t, email, password, token); code != http.StatusOK {
		t.Fatalf("login after reactivation: %d %+v", code, env)
	}

	if code, _ := s.call(t, http.MethodPost, "/api/v1/auth/logout", jwt, nil); code != http.StatusOK {
		t.Fatalf("logout status = %d", code)
	}
	if code, env := s.call(t, http.MethodGet, "/api/v1/auth/me", jwt, nil); code != http.StatusUnauthorized || env.Code != 40104 {
		t.Fatalf("revoked session: %d %+v", code, env)
	}
}

func TestLoginRejectsWrongToken(t *testing.T) {
	s := newTestServer(t)
	const email, password = "second@corp.test", "secret-pass"
	s.onboard(t, email, password)

	if code, env := s.login(t, email, password, "GV-2026-WRONG"); code != http.StatusUnauthorized || env.Code != 40106 {
		t.Fatalf("wrong token: %d %+v", code, env)
	}
	if code, _ := s.call(t, http.MethodGet, "/api/v1/nowhere", "", nil); code != http.StatusNotFound {
		t.Fatalf("no route status = %d", code)
	}
}
