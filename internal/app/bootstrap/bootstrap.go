package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"brokerdesk/internal/app/di"
	apilogadapters "brokerdesk/internal/feature/apilog/adapters"
	apilogmw "brokerdesk/internal/feature/apilog/transport/middleware"
	apilogusecase "brokerdesk/internal/feature/apilog/usecase"
	authadapters "brokerdesk/internal/feature/auth/adapters"
	authhandler "brokerdesk/internal/feature/auth/transport/handler"
	authusecase "brokerdesk/internal/feature/auth/usecase"
	mcusecase "brokerdesk/internal/feature/mastercontract/usecase"
	searchhandler "brokerdesk/internal/feature/search/transport/handler"
	platformdb "brokerdesk/internal/platform/db"
	corehandler "brokerdesk/internal/platform/http/handler"
	"brokerdesk/internal/platform/logger"
	"brokerdesk/internal/platform/metrics"
	"brokerdesk/internal/platform/realtime"
	"brokerdesk/internal/platform/session"
	"brokerdesk/internal/shared/ratelimiter"
	"brokerdesk/web"
)

const (
	loginPath  = "/auth/login"
	searchPath = "/search/"
)

// unloggedPaths are kept out of the access log and the api_logs table.
var unloggedPaths = []string{"/healthz", "/metrics", "/static/", "/ws"}

// tableFreePaths never touch the application tables, so lazy table init does not gate them.
var tableFreePaths = []string{"/api/test", "/api/debug", "/healthz", "/metrics", "/static/", "/ws"}

// Deps are the connections New wires into the route groups. DB and Log are required.
type Deps struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// App is the assembled application.
type App struct {
	Engine *gin.Engine
	Auth   *authusecase.AuthUsecase
	Hub    *realtime.Hub
	APILog *apilogusecase.Writer
}

// New builds the gin engine. ctx bounds the background goroutines (realtime hub, relay).
func New(ctx context.Context, opts Options, deps Deps) (*App, error) {
	if deps.DB == nil {
		return nil, errors.New("bootstrap: database is required")
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	opts.applyDefaults()
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	// 1) session cookie policy
	codec, err := session.NewCodec(opts.SessionSecret, opts.Cookie)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	// 2) tables
	var lazy *lazyTables
	switch opts.TableInit {
	case TableInitEager:
		if err := ensureTables(deps.DB); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	case TableInitLazy:
		lazy = newLazyTables(func() error { return ensureTables(deps.DB) }, log)
	default:
		return nil, fmt.Errorf("bootstrap: unknown table init mode %q", opts.TableInit)
	}

	// 3) realtime hub（失敗しても起動は続ける）
	hub := startRealtime(ctx, deps, log)

	// 4) usecases over the explicit *gorm.DB
	authUC := authusecase.NewAuthUsecase(
		authadapters.NewUserGorm(deps.DB),
		di.NewSessionRepository(deps.Redis, deps.DB),
		codec.Options().Lifetime,
		log,
	)
	symbolUC := mcusecase.NewSymbolUsecase(di.NewSymbolStore(deps.Redis, deps.DB))
	sessions := session.NewManager(codec, authUC, log)

	apiLog := apilogusecase.NewWriter(apilogadapters.NewAPILogRepository(deps.DB), opts.APILogQueue, log)
	apiLog.Start()

	// 5) engine and middleware chain
	r := gin.New()
	r.Use(
		corehandler.Recovery(log),
		deps.Metrics.Middleware(),
		logger.GinLogger(log, unloggedPaths...),
		corsMiddleware(corsConfig(), preflightRoutes...),
	)
	if lazy != nil {
		r.Use(lazy.Middleware(tableFreePaths...))
	}
	r.Use(
		sessions.Load(),
		apilogmw.Middleware(apiLog, unloggedPaths...),
		corehandler.ErrorLogger(log),
	)
	r.NoRoute(corehandler.NotFound)

	// 6) route groups
	groups := []routeGroup{
		{name: "core", register: func(r *gin.Engine) error {
			registerCore(r, opts, deps, hub)
			return nil
		}},
		{name: "templates", register: func(r *gin.Engine) error {
			tmpl, err := web.Templates(opts.Templates)
			if err != nil {
				return err
			}
			r.SetHTMLTemplate(tmpl)
			return nil
		}},
		{name: "static", register: func(r *gin.Engine) error {
			if opts.StaticDir == "" {
				return nil
			}
			if _, err := os.Stat(opts.StaticDir); err != nil {
				return fmt.Errorf("static dir: %w", err)
			}
			r.Static("/static", opts.StaticDir)
			return nil
		}},
		{name: "auth", register: func(r *gin.Engine) error {
			limit := ratelimiter.Middleware(ratelimiter.NewRateLimiter(opts.LoginLimit, opts.LoginWindow))
			authhandler.NewAuthHandler(authUC, sessions, limit, searchPath, log).Register(r.Group("/auth"))
			return nil
		}},
		{name: "search", register: func(r *gin.Engine) error {
			searchhandler.NewSearchHandler(symbolUC, loginPath).Register(r.Group("/search"))
			return nil
		}},
	}
	if err := registerGroups(r, groups, opts.Registration, log); err != nil {
		_ = apiLog.Close(context.Background())
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	log.Info("application initialised",
		zap.String("env", opts.Env),
		zap.String("table_init", string(opts.TableInit)),
		zap.String("registration", string(opts.Registration)),
		zap.Bool("redis", deps.Redis != nil),
		zap.Bool("realtime", hub != nil),
	)

	return &App{Engine: r, Auth: authUC, Hub: hub, APILog: apiLog}, nil
}

// Shutdown flushes the api log queue.
func (a *App) Shutdown(ctx context.Context) error {
	return a.APILog.Close(ctx)
}

// startRealtime starts the hub and, with Redis, the relay. Failures leave realtime disabled.
func startRealtime(ctx context.Context, deps Deps, log *zap.Logger) (hub *realtime.Hub) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("realtime hub disabled", zap.Any("panic", rec))
			hub = nil
		}
	}()

	hub = realtime.NewHub(log)
	go hub.Run(ctx)

	if err := deps.Metrics.RegisterGaugeFunc("realtime_websocket_clients", "Connected websocket clients.",
		func() float64 { return float64(hub.Clients()) }); err != nil {
		log.Warn("failed to register websocket gauge", zap.Error(err))
	}

	if deps.Redis != nil {
		if err := realtime.Relay(ctx, deps.Redis, realtime.DefaultChannel, hub, log); err != nil {
			log.Warn("realtime relay unavailable, serving local events only", zap.Error(err))
		}
	}
	return hub
}

// registerCore adds the utility endpoints.
func registerCore(r *gin.Engine, opts Options, deps Deps, hub *realtime.Hub) {
	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, searchPath) })

	r.GET("/api/test", corehandler.APITest)
	r.OPTIONS("/api/test", corehandler.APITest)

	checks := map[string]corehandler.HealthCheck{
		"database": func(ctx context.Context) error {
			if !platformdb.IsHealthy(ctx, deps.DB) {
				return errors.New("ping failed")
			}
			return nil
		},
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}
	health := corehandler.NewHealth(checks)
	r.GET("/healthz", health)
	r.HEAD("/healthz", health)
	r.OPTIONS("/healthz", health)

	r.GET("/metrics", deps.Metrics.Handler())

	if hub != nil {
		r.GET("/ws", realtime.Handler(hub, realtime.NewUpgrader()))
	}

	if opts.DebugEndpoint {
		r.GET("/api/debug", corehandler.NewDebug(func(c *gin.Context) corehandler.DebugInfo {
			return debugInfo(c.Request.Context(), opts, deps, hub)
		}))
	}
}

func debugInfo(ctx context.Context, opts Options, deps Deps, hub *realtime.Hub) corehandler.DebugInfo {
	redisState := "disabled"
	if deps.Redis != nil {
		redisState = "connected"
		if err := deps.Redis.Ping(ctx).Err(); err != nil {
			redisState = "unreachable"
		}
	}
	realtimeState := "disabled"
	if hub != nil {
		realtimeState = "running"
	}
	return corehandler.DebugInfo{
		Status:      "ok",
		Environment: opts.Env,
		Database: corehandler.DatabaseDebug{
			Driver:    opts.DBDriver,
			SourceEnv: opts.DBSourceEnv,
			Connected: platformdb.IsHealthy(ctx, deps.DB),
		},
		Redis:    redisState,
		Realtime: realtimeState,
	}
}
