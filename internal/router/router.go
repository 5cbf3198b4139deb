package router

import (
	"time"

	"github.com/mironalin/BeamerParts-sub003/internal/config"
	"github.com/mironalin/BeamerParts-sub003/internal/handler"
	"github.com/mironalin/BeamerParts-sub003/internal/middleware"
	"github.com/mironalin/BeamerParts-sub003/internal/repository"
	"github.com/mironalin/BeamerParts-sub003/internal/service"
	"github.com/mironalin/BeamerParts-sub003/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	ledgerRepo := repository.NewLedgerRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	movementRepo := repository.NewMovementRepository(db)

	// Worker dispatcher — injected into the service that raises alerts
	dispatcher := worker.NewDispatcher(rdb)

	// ── Services ─────────────────────────────────────────────────────────────
	stockSvc := service.NewStockService(
		ledgerRepo, reservationRepo, movementRepo,
		rdb, dispatcher,
		time.Duration(cfg.DefaultReservationTTLMinutes)*time.Minute,
	)
	querySvc := service.NewQueryService(
		ledgerRepo, rdb,
		time.Duration(cfg.SnapshotCacheTTLSeconds)*time.Second,
	)

	// ── Handlers ─────────────────────────────────────────────────────────────
	stockH := handler.NewStockHandler(stockSvc, querySvc)
	movementsH := handler.NewMovementsHandler(movementRepo)

	// ── Routes ───────────────────────────────────────────────────────────────
	r.GET("/health", handler.Health(db, rdb))

	v1 := r.Group("/v1")
	{
		stock := v1.Group("/stock")
		{
			stock.POST("/reserve", stockH.Reserve)
			stock.POST("/release", stockH.Release)
			stock.POST("/adjust", stockH.Adjust)
			stock.POST("/query", stockH.BulkQuery)
			stock.GET("/movements", movementsH.List)
			stock.GET("/:sku", stockH.Query)
			stock.GET("/:sku/availability", stockH.Availability)
		}
	}

	return r
}
