package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"egaku/internal/cache"
	"egaku/internal/config"
	"egaku/internal/database"
	"egaku/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testCallbackSecret = "test-callback-secret-0123456789abcdef"

type mailerSpy struct {
	mu    sync.Mutex
	codes map[string]string
	langs map[string]string
}

func (m *mailerSpy) SendCode(_ context.Context, to, code, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	m.langs[to] = lang
	return nil
}

func (m *mailerSpy) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

type dispatcherSpy struct {
	mu   sync.Mutex
	refs []models.SubmissionRef
}

func (d *dispatcherSpy) Dispatch(_ context.Context, ref models.SubmissionRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs = append(d.refs, ref)
	return nil
}

func (d *dispatcherSpy) Close() error { return nil }

func (d *dispatcherSpy) dispatched() []models.SubmissionRef {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.SubmissionRef(nil), d.refs...)
}

type testEnv struct {
	s      *Server
	app    *fiber.App
	db     *gorm.DB
	mr     *miniredis.Miniredis
	mailer *mailerSpy
	queue  *dispatcherSpy
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Env:                      "test",
		Port:                     "0",
		PublicBaseURL:            "http://localhost:8000",
		DBDriver:                 "sqlite",
		UploadDir:                t.TempDir(),
		UploadMaxBytes:           1 << 20,
		StorageDriver:            "local",
		TokenTTL:                 time.Hour,
		CodeTTL:                  5 * time.Minute,
		FeatureFlags:             "summary=on,realtime_reminders=on",
		ModerationCallbackSecret: testCallbackSecret,
	}
}

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// setupServer wires a full server over in-memory SQLite and miniredis. Tests that use it
// share the process-wide cache client and must not run in parallel.
func setupServer(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})

	db := setupSQLiteDB(t)
	mailer := &mailerSpy{codes: map[string]string{}, langs: map[string]string{}}
	queue := &dispatcherSpy{}

	s, err := NewServerWithDeps(cfg, db, rdb, WithMailer(mailer), WithDispatcher(queue))
	require.NoError(t, err)

	return &testEnv{s: s, app: s.App(), db: db, mr: mr, mailer: mailer, queue: queue}
}

type apiResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
}

func (r apiResponse) errorCode() string {
	code, _ := r.Data["error"].(string)
	return code
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, apiResponse) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var out apiResponse
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp, out
}

func jsonBody(t *testing.T, body any) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	return &buf
}

// post calls a JSON API route with an optional session token.
func (e *testEnv) post(t *testing.T, path, token string, body any) apiResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("token", token)
	}
	resp, out := e.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, path)
	return out
}

// mustPost is post that fails the test on an error envelope.
func (e *testEnv) mustPost(t *testing.T, path, token string, body any) map[string]any {
	t.Helper()
	out := e.post(t, path, token, body)
	require.True(t, out.Success, "%s failed with %s", path, out.errorCode())
	return out.Data
}

// register signs account up through the public endpoints and returns a session token and user id.
func (e *testEnv) register(t *testing.T, account string) (string, uint) {
	t.Helper()
	email := account + "@example.com"
	e.mustPost(t, "/api/user/sendCode", "", fiber.Map{"email": email, "isNewEmail": true})
	e.mustPost(t, "/api/user/signup", "", fiber.Map{
		"account":  account,
		"email":    email,
		"password": "secret-" + account,
		"code":     e.mailer.code(email),
	})
	login := e.mustPost(t, "/api/user/login", "", fiber.Map{
		"accountOrEmail": account,
		"password":       "secret-" + account,
	})
	token := login["token"].(string)

	info := e.mustPost(t, "/api/user/getInfo", token, nil)
	uid, err := strconv.ParseUint(info["uid"].(string), 10, 64)
	require.NoError(t, err)
	return token, uint(uid)
}

func (e *testEnv) makeAdmin(t *testing.T, uid uint) {
	t.Helper()
	require.NoError(t, e.db.Model(&models.User{}).Where("id = ?", uid).Update("admin", true).Error)
	cache.InvalidateUser(context.Background(), uid)
}

// submitArticle submits an article as token's owner and returns its id as sent on the wire.
func (e *testEnv) submitArticle(t *testing.T, token, title, text string) string {
	t.Helper()
	data := e.mustPost(t, "/api/article/submit", token, fiber.Map{
		"title":     title,
		"content":   "<p>" + text + "</p>",
		"plainText": text,
	})
	return data["id"].(string)
}

func (e *testEnv) approve(t *testing.T, adminToken, id string, kind models.SubmissionKind) {
	t.Helper()
	e.mustPost(t, "/api/common/updateStatus", adminToken, fiber.Map{
		"id":     id,
		"type":   kind,
		"status": models.StatusApproved,
	})
}

func listLen(data map[string]any) int {
	list, _ := data["dataList"].([]any)
	return len(list)
}
