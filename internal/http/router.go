package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/studentportal/internal/auth"
	"github.com/geocoder89/studentportal/internal/config"
	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/http/handlers"
	"github.com/geocoder89/studentportal/internal/http/middlewares"
	"github.com/geocoder89/studentportal/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	serviceName  = "studentportal-api"
	maxBodyBytes = 1 << 20
)

type Deps struct {
	Log    *slog.Logger
	Config config.Config

	Store     user.Store
	Hasher    handlers.PasswordHasher
	Tokens    *auth.Manager
	Denylist  auth.Denylist
	Publisher handlers.WelcomePublisher

	// optional
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Checks   []handlers.ReadinessCheck
	Now      func() time.Time
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log != nil {
		slog.SetDefault(d.Log)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(serviceName))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Config.ClientURLs))
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))

	// health
	checks := append([]handlers.ReadinessCheck{{Name: "store", Ping: d.Store.Ping}}, d.Checks...)
	h := handlers.NewHealthHandler(checks...)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	cookie := auth.NewCookieConfig(d.Config.IsProd())

	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Users:     d.Store,
		Hasher:    d.Hasher,
		Tokens:    d.Tokens,
		Denylist:  d.Denylist,
		Cookie:    cookie,
		Publisher: d.Publisher,
		Prom:      d.Prom,
		Now:       d.Now,
	})
	studentsHandler := handlers.NewStudentsHandler(d.Store, d.Hasher, d.Publisher)
	profileHandler := handlers.NewProfileHandler(d.Store)

	authMW := middlewares.NewAuthMiddleware(d.Tokens, d.Store, d.Denylist, cookie, d.Prom)

	limit := d.Config.AuthRateLimit
	if limit <= 0 {
		limit = 20
	}
	window := d.Config.AuthRateWindow
	if window <= 0 {
		window = time.Minute
	}
	authLimiter := middlewares.NewRateLimiter(limit, window).RateLimiterMiddleware(middlewares.KeyByIP)

	api := r.Group("/api")
	api.Use(middlewares.RequireJSON())

	authRoutes := api.Group("/auth")
	authRoutes.POST("/signup", authLimiter, authHandler.SignUp)
	authRoutes.POST("/login", authLimiter, authHandler.Login)
	authRoutes.POST("/logout", authHandler.Logout)

	protected := api.Group("")
	protected.Use(authMW.RequireAuth())

	admin := protected.Group("/admin")
	admin.Use(middlewares.RequireRole(user.RoleAdmin))
	admin.GET("/students", studentsHandler.List)
	admin.POST("/students", studentsHandler.Create)
	admin.PUT("/students/:id", studentsHandler.Update)
	admin.DELETE("/students/:id", studentsHandler.Delete)

	student := protected.Group("/student")
	student.GET("/profile", profileHandler.Get)
	student.PUT("/profile", profileHandler.Update)

	return r
}
