package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"gpuwatch/internal/service"
	"gpuwatch/pkg/store/memory"

	"github.com/gin-gonic/gin"
)

// QueryHandler serves the JSON query API over the aggregate views.
type QueryHandler struct {
	boardService *service.BoardService
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(boardService *service.BoardService) *QueryHandler {
	return &QueryHandler{boardService: boardService}
}

// ListHosts returns every known host with its liveness classification.
// GET /v1/hosts
func (h *QueryHandler) ListHosts(c *gin.Context) {
	now := time.Now()
	view := h.boardService.Board(now)

	hosts := make([]gin.H, 0, len(view.Hosts))
	for _, host := range view.Hosts {
		hosts = append(hosts, gin.H{
			"hostname":  host.Hostname,
			"connected": host.Connected,
			"last_seen": host.LastSeen,
		})
	}
	c.JSON(http.StatusOK, gin.H{"hosts": hosts, "timestamp": now})
}

// GetLatest returns a host's latest snapshot.
// GET /v1/hosts/:hostname
func (h *QueryHandler) GetLatest(c *gin.Context) {
	hostname := c.Param("hostname")

	snap, err := h.boardService.Latest(hostname)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown host: " + hostname})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetHistory returns a host's retained history, optionally bounded below.
// GET /v1/hosts/:hostname/history?since=<unix seconds>
func (h *QueryHandler) GetHistory(c *gin.Context) {
	hostname := c.Param("hostname")

	var since float64
	if sinceStr := c.Query("since"); sinceStr != "" {
		parsed, err := strconv.ParseFloat(sinceStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a unix timestamp"})
			return
		}
		since = parsed
	}

	history := h.boardService.History(hostname, since)
	c.JSON(http.StatusOK, gin.H{
		"hostname": hostname,
		"count":    len(history),
		"history":  history,
	})
}

// GetTopUsers returns the most frequent historical occupant per GPU slot.
// GET /v1/hosts/:hostname/top
func (h *QueryHandler) GetTopUsers(c *gin.Context) {
	hostname := c.Param("hostname")
	c.JSON(http.StatusOK, gin.H{
		"hostname":  hostname,
		"top_users": h.boardService.TopUsers(hostname),
	})
}

// GetLiveness returns a host's last-seen time and live classification.
// GET /v1/hosts/:hostname/liveness
func (h *QueryHandler) GetLiveness(c *gin.Context) {
	hostname := c.Param("hostname")

	info, err := h.boardService.Liveness(hostname, time.Now())
	if err != nil {
		if errors.Is(err, memory.ErrUnknownHost) {
			c.JSON(http.StatusNotFound, gin.H{"error": "host has never reported: " + hostname})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetBoard returns every host's latest snapshot.
// GET /v1/board
func (h *QueryHandler) GetBoard(c *gin.Context) {
	c.JSON(http.StatusOK, h.boardService.AllLatest())
}

// GetFreeUsed returns the idle/busy tally per GPU model.
// GET /v1/free
func (h *QueryHandler) GetFreeUsed(c *gin.Context) {
	c.JSON(http.StatusOK, h.boardService.FreeUsedTally())
}

// GetFinder returns hosts with idle instances per GPU model.
// GET /v1/finder
func (h *QueryHandler) GetFinder(c *gin.Context) {
	c.JSON(http.StatusOK, h.boardService.Finder())
}

// GetLeaderboard returns occupants ranked by current distinct-GPU holdings.
// GET /v1/leaderboard
func (h *QueryHandler) GetLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"leaderboard": h.boardService.Leaderboard()})
}
