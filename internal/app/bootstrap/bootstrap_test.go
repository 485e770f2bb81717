package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	mcentity "brokerdesk/internal/feature/mastercontract/domain/entity"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newApp(t *testing.T, opts Options) (*App, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	if opts.SessionSecret == "" {
		opts.SessionSecret = "test-secret"
	}
	ctx, cancel := context.WithCancel(context.Background())
	app, err := New(ctx, opts, Deps{DB: db, Log: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = app.Shutdown(context.Background())
		cancel()
	})
	return app, db
}

func serve(app *App, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	app.Engine.ServeHTTP(w, req)
	return w
}

func TestNew_APITest(t *testing.T) {
	t.Parallel()

	app, _ := newApp(t, Options{})

	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		w := serve(app, httptest.NewRequest(method, "/api/test", nil))
		assert.Equal(t, http.StatusOK, w.Code, method)
		assert.JSONEq(t, `{"status":"success","message":"CORS is working!"}`, w.Body.String(), method)
	}
}

func TestNew_APITestPreflightReachesHandler(t *testing.T) {
	t.Parallel()

	app, _ := newApp(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/test", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := serve(app, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","message":"CORS is working!"}`, w.Body.String())
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Requested-With")
}

func TestNew_PreflightElsewhereIsAnsweredByCORS(t *testing.T) {
	t.Parallel()

	app, _ := newApp(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/search/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := serve(app, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_LazyTablesDoNotGateUtilityEndpoints(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	app, err := New(ctx, Options{SessionSecret: "test-secret", TableInit: TableInitLazy}, Deps{DB: db, Log: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = app.Shutdown(context.Background())
		cancel()
	})

	// DB が落ちている間もテーブル不要のエンドポイントは応答する
	require.NoError(t, sqlDB.Close())

	w := serve(app, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","message":"CORS is working!"}`, w.Body.String())

	w = serve(app, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Internal server error"}`, w.Body.String())
}

func TestNew_NotFound(t *testing.T) {
	t.Parallel()

	app, _ := newApp(t, Options{})

	w := serve(app, httptest.NewRequest(http.MethodGet, "/no/such/path", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Endpoint not found"}`, w.Body.String())
}

func TestNew_CORSReflectsOrigin(t *testing.T) {
	t.Parallel()

	app, _ := newApp(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := serve(app, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestNew_EagerCreatesTables(t *testing.T) {
	t.Parallel()

	_, db := newApp(t, Options{TableInit: TableInitEager})

	for _, table := range []string{"users", "sessions", "symtoken", "api_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestNew_LazyCreatesTablesOnFirstRequest(t *testing.T) {
	t.Parallel()

	app, db := newApp(t, Options{TableInit: TableInitLazy})
	assert.False(t, db.Migrator().HasTable("symtoken"))

	w := serve(app, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, db.Migrator().HasTable("symtoken"), "utility endpoints do not trigger table init")

	w = serve(app, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, db.Migrator().HasTable("symtoken"))
	assert.True(t, db.Migrator().HasTable("users"))
}

func TestNew_RequiresSessionSecretAndDB(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Options{}, Deps{DB: setupTestDB(t)})
	assert.ErrorContains(t, err, "session secret is empty")

	_, err = New(context.Background(), Options{SessionSecret: "x"}, Deps{})
	assert.ErrorContains(t, err, "database is required")
}

func TestNew_StrictRegistrationAbortsOnMissingStaticDir(t *testing.T) {
	t.Parallel()

	opts := Options{SessionSecret: "x", Registration: RegistrationStrict, StaticDir: "/definitely/not/here"}
	_, err := New(context.Background(), opts, Deps{DB: setupTestDB(t)})
	assert.ErrorContains(t, err, "register static routes")

	// best_effort では static だけ欠けて他は動く
	opts.Registration = RegistrationBestEffort
	app, _ := newApp(t, opts)
	w := serve(app, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_Debug(t *testing.T) {
	t.Parallel()

	app, _ := newApp(t, Options{})
	w := serve(app, httptest.NewRequest(http.MethodGet, "/api/debug", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "disabled by default")

	app, _ = newApp(t, Options{Env: "prod", DebugEndpoint: true, DBDriver: "sqlite", DBSourceEnv: "DATABASE_URL"})
	w = serve(app, httptest.NewRequest(http.MethodGet, "/api/debug", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"status": "ok",
		"environment": "prod",
		"database": {"driver": "sqlite", "source_env": "DATABASE_URL", "connected": true},
		"redis": "disabled",
		"realtime": "running"
	}`, w.Body.String())
}

func TestNew_Healthz(t *testing.T) {
	t.Parallel()

	app, _ := newApp(t, Options{})
	w := serve(app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
}

func TestNew_SearchFlow(t *testing.T) {
	t.Parallel()

	app, db := newApp(t, Options{})
	ctx := context.Background()

	created, err := app.Auth.EnsureUser(ctx, "admin", "s3cret-pass")
	require.NoError(t, err)
	require.True(t, created)

	for i := 0; i < 15; i++ {
		require.NoError(t, db.Create(&mcentity.SymbolRecord{
			Symbol:   fmt.Sprintf("RELIANCE%02d", i),
			BrSymbol: fmt.Sprintf("RELIANCE%02d-EQ", i),
			Name:     "RELIANCE INDUSTRIES",
			Exchange: "NSE",
			Token:    fmt.Sprintf("%d", 1000+i),
			LotSize:  1,
		}).Error)
	}

	// 未ログイン
	w := serve(app, httptest.NewRequest(http.MethodGet, "/search/", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/login", w.Header().Get("Location"))
	w = serve(app, httptest.NewRequest(http.MethodGet, "/search/suggestions?term=REL", nil))
	assert.JSONEq(t, `[]`, w.Body.String())

	// ログイン
	form := url.Values{"username": {"admin"}, "password": {"s3cret-pass"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = serve(app, req)
	require.Equal(t, http.StatusFound, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	authed := func(target string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		for _, c := range cookies {
			r.AddCookie(c)
		}
		return r
	}

	req = authed("/search/?symbol=RELIANCE07&exchange=NSE")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	w = serve(app, req)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status  string           `json:"status"`
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	require.Len(t, resp.Results, 1)
	assert.Len(t, resp.Results[0], 11)

	w = serve(app, authed("/search/suggestions?term=REL&exchange=NSE"))
	var suggestions []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &suggestions))
	require.Len(t, suggestions, 10)
	assert.Equal(t, "RELIANCE00 - RELIANCE INDUSTRIES", suggestions[0]["label"])

	// ログアウト後は同じクッキーが使えない
	w = serve(app, authed("/auth/logout"))
	require.Equal(t, http.StatusFound, w.Code)
	w = serve(app, authed("/search/token"))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/login", w.Header().Get("Location"))
}

func TestLazyTables_RetriesAfterFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	lazy := newLazyTables(func() error {
		calls++
		if calls == 1 {
			return errors.New("database is starting up")
		}
		return nil
	}, zap.NewNop())

	r := gin.New()
	r.Use(lazy.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusInternalServerError, http.StatusOK, http.StatusOK}, codes)
	assert.Equal(t, 2, calls, "init stops once it succeeds")
}

func TestRegisterGroups(t *testing.T) {
	t.Parallel()

	failing := errors.New("boom")
	groups := func(hits *[]string) []routeGroup {
		return []routeGroup{
			{name: "first", register: func(r *gin.Engine) error {
				*hits = append(*hits, "first")
				r.GET("/dup", func(*gin.Context) {})
				return nil
			}},
			{name: "broken", register: func(*gin.Engine) error { return failing }},
			{name: "conflict", register: func(r *gin.Engine) error {
				r.GET("/dup", func(*gin.Context) {})
				return nil
			}},
			{name: "last", register: func(*gin.Engine) error {
				*hits = append(*hits, "last")
				return nil
			}},
		}
	}

	t.Run("strict stops at the first failure", func(t *testing.T) {
		t.Parallel()

		var hits []string
		err := registerGroups(gin.New(), groups(&hits), RegistrationStrict, zap.NewNop())
		assert.ErrorIs(t, err, failing)
		assert.ErrorContains(t, err, "register broken routes")
		assert.Equal(t, []string{"first"}, hits)
	})

	t.Run("best effort logs and continues", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zap.ErrorLevel)
		var hits []string
		err := registerGroups(gin.New(), groups(&hits), RegistrationBestEffort, zap.New(core))
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "last"}, hits)

		skipped := logs.FilterMessage("route group skipped").All()
		require.Len(t, skipped, 2, "error and panic are both reported")
		assert.Equal(t, "broken", skipped[0].ContextMap()["group"])
		assert.Equal(t, "conflict", skipped[1].ContextMap()["group"])
	})
}

func TestParseModes(t *testing.T) {
	t.Parallel()

	ti, err := ParseTableInit("")
	require.NoError(t, err)
	assert.Equal(t, TableInitEager, ti)
	ti, err = ParseTableInit(" LAZY ")
	require.NoError(t, err)
	assert.Equal(t, TableInitLazy, ti)
	_, err = ParseTableInit("sometimes")
	assert.Error(t, err)

	reg, err := ParseRegistration("")
	require.NoError(t, err)
	assert.Equal(t, RegistrationBestEffort, reg)
	reg, err = ParseRegistration("strict")
	require.NoError(t, err)
	assert.Equal(t, RegistrationStrict, reg)
	_, err = ParseRegistration("yolo")
	assert.Error(t, err)
}
