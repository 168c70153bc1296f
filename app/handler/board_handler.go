package handler

import (
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"time"

	"gpuwatch/internal/model"
	"gpuwatch/internal/service"
	"gpuwatch/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// BoardHandler renders the HTML dashboard and streams board updates over
// WebSocket.
type BoardHandler struct {
	boardService *service.BoardService
	pushInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewBoardHandler creates a new board handler.
func NewBoardHandler(boardService *service.BoardService) *BoardHandler {
	return &BoardHandler{
		boardService: boardService,
		pushInterval: 5 * time.Second,
		upgrader: websocket.Upgrader{
			// The board is world-readable; cross-origin viewers are fine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Index renders the dashboard.
// GET /
func (h *BoardHandler) Index(c *gin.Context) {
	view := h.boardService.Board(time.Now())

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := boardTemplate.Execute(c.Writer, view); err != nil {
		logger.ErrorCtx(c.Request.Context(), "board render failed: %v", err)
	}
}

// Stream pushes the board state over a WebSocket every few seconds until
// the client goes away.
// GET /ws
func (h *BoardHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logger.DebugCtx(c.Request.Context(), "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(h.pushInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		if err := conn.WriteJSON(h.boardService.Board(time.Now())); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Template helpers. Color bands match the long-standing board styling:
// green up to 25%, info to 50, warning to 75, danger above.
var boardFuncs = template.FuncMap{
	"memPercent": func(gpu model.GPUReading) int {
		if gpu.MemoryTotal <= 0 {
			return 0
		}
		return int(100 * gpu.MemoryUsed / gpu.MemoryTotal)
	},
	"barColor": func(percent int) string {
		switch {
		case percent <= 25:
			return "bg-success"
		case percent <= 50:
			return "bg-info"
		case percent <= 75:
			return "bg-warning"
		default:
			return "bg-danger"
		}
	},
	"queryTime": func(ts float64) string {
		return time.Unix(int64(ts), 0).Format("2006-01-02 15:04:05")
	},
	"userList": func(users map[string]float64) string {
		names := make([]string, 0, len(users))
		for name := range users {
			names = append(names, name)
		}
		sort.Strings(names)
		out := ""
		for i, name := range names {
			if i > 0 {
				out += " "
			}
			out += fmt.Sprintf("%s(%.0fM)", name, users[name])
		}
		return out
	},
	"topUser": func(top map[int]string, index int) string {
		return top[index]
	},
}

var boardTemplate = template.Must(template.New("board").Funcs(boardFuncs).Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <meta http-equiv="refresh" content="5" />
    <title>GPU Watcher</title>
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.1/dist/css/bootstrap.min.css" rel="stylesheet">
  </head>
  <body>
    <br><div class="container">
    {{range .Hosts}}
      <div class="card">
      <div class="card-header">
        {{.Hostname}} -- QueryTime: {{queryTime .Snapshot.QueryTime}}
        {{if not .Connected}}<span class="badge bg-danger">disconnected</span>{{end}}
      </div>
      <ul class="list-group list-group-flush">
      {{$top := .TopUsers}}
      {{range .Snapshot.GPUs}}
        <li class="list-group-item">
        <div class="hstack gap-3">
          <div><span>{{.Index}}: {{.Name}}</span></div>
          <div class="lead progress w-25" role="progressbar">
            <div class="progress-bar {{barColor .Utilization}} overflow-visible text-dark text-center" style="width: {{.Utilization}}%"><b>Utilization: {{.Utilization}}%</b></div>
          </div>
          {{$mem := memPercent .}}
          <div class="lead progress w-25" role="progressbar">
            <div class="progress-bar {{barColor $mem}} overflow-visible text-dark text-center" style="width: {{$mem}}%"><b>{{$mem}}% ({{.MemoryUsed}}M / {{.MemoryTotal}}M)</b></div>
          </div>
          <small><b>Users:</b> {{userList .Users}}</small>
          <small><b>TopUser:</b> {{topUser $top .Index}}</small>
        </div>
        </li>
      {{end}}
      </ul>
      </div><!-- card -->
      <br>
    {{end}}
    </div>
  </body>
</html>
`))
