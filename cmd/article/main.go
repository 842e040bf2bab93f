package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osmbc/articles/handlers"
	"github.com/osmbc/articles/internal/article/handler"
	"github.com/osmbc/articles/internal/article/service"
	"github.com/osmbc/articles/internal/blog"
	"github.com/osmbc/articles/internal/config"
	"github.com/osmbc/articles/internal/linkexpand"
	"github.com/osmbc/articles/internal/notify"
	"github.com/osmbc/articles/internal/oidc"
	"github.com/osmbc/articles/internal/search"
	"github.com/osmbc/articles/internal/tokens"
	"github.com/osmbc/articles/internal/users"
	"github.com/osmbc/articles/pkg/logger"
	"github.com/osmbc/articles/pkg/metrics"
	"github.com/osmbc/articles/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: storage=%s keycloak=%v redis=%v meili=%v", cfg.Storage.Driver, cfg.Keycloak.URL != "", cfg.Redis.Host != "", cfg.Meili.URL != "")

	catalog, err := config.LoadCatalog(cfg.Articles.CatalogFile)
	if err != nil {
		logger.Fatalf("failed to load article catalog: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer store.close()

	// Redis backs the orphan cache, event publishing and the shared rate limiter
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
		} else {
			logger.Infof("connected to Redis %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
		defer rdb.Close()
	}

	var meili *search.Meili
	if cfg.Meili.URL != "" {
		meili = search.NewMeili(cfg.Meili.URL, cfg.Meili.APIKey)
		defer meili.Close()
	}
	searchSvc := search.NewService(meili, store.articles)

	notifiers := notify.Multi{notify.NewLogNotifier()}
	var orphans blog.OrphanCache = blog.NewMemoryOrphanCache()
	if rdb != nil {
		notifiers = append(notifiers, notify.NewRedisNotifier(rdb, cfg.Redis.Channel))
		orphans = blog.NewRedisOrphanCache(rdb, "osmbc:orphan-blogs")
	}
	notifier := notify.NewAsync(notifiers, cfg.Articles.NotifyTimeout)

	svc := service.New(service.Deps{
		Articles: store.articles,
		Changes:  store.changes,
		Blogs:    store.blogs,
		Notifier: notifier,
		Expander: linkexpand.NewHTTPExpander(linkexpand.Options{
			Hosts:   cfg.Articles.ShortenerHosts,
			RPS:     cfg.Articles.ExpandRPS,
			Timeout: cfg.Articles.ExpandTimeout,
		}),
		Search:              searchSvc,
		Orphans:             orphans,
		Languages:           cfg.Articles.Languages,
		Flags:               catalog.Flags(),
		CategoryTranslation: catalog.CategoryTranslation,
	})

	verifier := buildVerifier(ctx, cfg)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{}
		pctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps["storage"] = store.ping(pctx) == nil
		if rdb != nil {
			deps["redis"] = rdb.Ping(pctx).Err() == nil
		}
		if meili != nil {
			// search falls back to the store, so this is informational
			deps["search"] = meili.Healthy()
		}
		ready := deps["storage"] && (rdb == nil || deps["redis"] || !cfg.RateLimit.UseRedis)
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	api := r.Group("/")
	if verifier != nil {
		api.Use(middleware.AuthMiddleware(verifier))
	} else {
		logger.Warnf("no token verifier configured; trusting the %s header", middleware.ActorHeader)
		api.Use(middleware.HeaderActorMiddleware())
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			api.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handlers.RegisterMe(api, users.NewService(store.users))
	handler.RegisterArticleRoutes(api, svc)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting article service on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	notifier.Wait()
}

// buildVerifier prefers Keycloak and falls back to a shared JWT secret.
// A nil result means development mode.
func buildVerifier(ctx context.Context, cfg *config.Config) middleware.Verifier {
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := oidc.KeycloakIssuer(cfg.Keycloak.URL, cfg.Keycloak.Realm)
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err == nil {
			logger.Infof("verifying tokens issued by %s", issuer)
			return ver
		}
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if cfg.JWT.Secret != "" {
		ver, err := tokens.NewHMACVerifier(cfg.JWT.Secret)
		if err == nil {
			return ver
		}
		logger.Warnf("failed to initialize JWT verifier: %v", err)
	}
	return nil
}

// cors is the permissive policy used for the editor frontend in development.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+middleware.ActorHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
