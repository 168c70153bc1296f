package router

import (
	"gpuwatch/app/handler"
	"gpuwatch/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	reportHandler *handler.ReportHandler
	queryHandler  *handler.QueryHandler
	boardHandler  *handler.BoardHandler
}

// NewRouter creates a new Router
func NewRouter(reportHandler *handler.ReportHandler, queryHandler *handler.QueryHandler, boardHandler *handler.BoardHandler) *Router {
	return &Router{
		reportHandler: reportHandler,
		queryHandler:  queryHandler,
		boardHandler:  boardHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger())

	// Reporting agents. Intentionally unauthenticated: hosts inside the
	// fleet push here on a timer.
	engine.POST("/submit", r.reportHandler.Submit)

	// Human-facing dashboard.
	engine.GET("/", r.boardHandler.Index)
	engine.GET("/ws", r.boardHandler.Stream)

	// V1 API - observer interface
	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		v1.GET("/hosts", r.queryHandler.ListHosts)
		v1.GET("/hosts/:hostname", r.queryHandler.GetLatest)
		v1.GET("/hosts/:hostname/history", r.queryHandler.GetHistory)
		v1.GET("/hosts/:hostname/top", r.queryHandler.GetTopUsers)
		v1.GET("/hosts/:hostname/liveness", r.queryHandler.GetLiveness)

		// Fleet-wide aggregates
		v1.GET("/board", r.queryHandler.GetBoard)
		v1.GET("/free", r.queryHandler.GetFreeUsed)
		v1.GET("/finder", r.queryHandler.GetFinder)
		v1.GET("/leaderboard", r.queryHandler.GetLeaderboard)
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
