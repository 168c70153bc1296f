package main

import (
	"fmt"
	"net/http"

	"gpuwatch/app/handler"
	"gpuwatch/app/router"
	"gpuwatch/internal/service"
	"gpuwatch/pkg/config"
	"gpuwatch/pkg/logger"
	"gpuwatch/pkg/retention"
	"gpuwatch/pkg/store/memory"
	redisstore "gpuwatch/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initStores initializes the in-memory history store and liveness tracker
func (app *Application) initStores() error {
	policy := retention.Policy{
		Window:           app.config.RetentionWindow().Seconds(),
		CapacityLimit:    app.config.Retention.CapacityLimit,
		DecimationFactor: app.config.Retention.DecimationFactor,
	}
	app.store = memory.NewHistoryStore(policy)
	app.liveness = memory.NewLivenessTracker()
	return nil
}

// initMirror initializes the optional Redis mirror of latest snapshots
func (app *Application) initMirror() error {
	if !app.config.Mirror.Enabled {
		logger.InfoCtx(app.ctx, "Redis mirror disabled, skipping")
		return nil
	}

	mirror, err := redisstore.NewMirror(app.config.Mirror)
	if err != nil {
		return err
	}

	app.mirror = mirror
	app.registerCleanup(func() {
		mirror.Close()
		logger.InfoCtx(app.ctx, "Redis mirror connection has been closed")
	})

	return nil
}

// initServices initializes the service layer
func (app *Application) initServices() error {
	app.ingestService = service.NewIngestService(app.store, app.liveness)
	if app.mirror != nil {
		app.ingestService = app.ingestService.WithMirror(app.mirror)
	}

	app.boardService = service.NewBoardService(app.store, app.liveness, app.config.Board)
	return nil
}

// initHandlers initializes the handler layer
func (app *Application) initHandlers() error {
	app.reportHandler = handler.NewReportHandler(app.ingestService)
	app.queryHandler = handler.NewQueryHandler(app.boardService)
	app.boardHandler = handler.NewBoardHandler(app.boardService)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	// Initialize router
	r := router.NewRouter(app.reportHandler, app.queryHandler, app.boardHandler)

	// Set Gin mode
	gin.SetMode(app.config.Server.Mode)

	// Create Gin engine
	app.ginEngine = gin.New()
	app.ginEngine.Use(gin.Recovery())

	// Setup routes
	r.Setup(app.ginEngine)

	// Create HTTP server
	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}

	return nil
}
