package handler

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gpuwatch/internal/model"
	"gpuwatch/internal/service"
	"gpuwatch/pkg/config"
	"gpuwatch/pkg/retention"
	"gpuwatch/pkg/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestStack wires a full handler stack over fresh in-memory stores.
func newTestStack() (*gin.Engine, *memory.HistoryStore, *memory.LivenessTracker) {
	store := memory.NewHistoryStore(retention.Policy{
		Window:           config.Default().RetentionWindow().Seconds(),
		CapacityLimit:    config.DefaultCapacityLimit,
		DecimationFactor: config.DefaultDecimationFactor,
	})
	liveness := memory.NewLivenessTracker()

	ingestService := service.NewIngestService(store, liveness)
	boardService := service.NewBoardService(store, liveness, config.Default().Board)

	engine := gin.New()
	engine.POST("/submit", NewReportHandler(ingestService).Submit)

	queryHandler := NewQueryHandler(boardService)
	v1 := engine.Group("/v1")
	v1.GET("/hosts", queryHandler.ListHosts)
	v1.GET("/hosts/:hostname", queryHandler.GetLatest)
	v1.GET("/hosts/:hostname/history", queryHandler.GetHistory)
	v1.GET("/hosts/:hostname/top", queryHandler.GetTopUsers)
	v1.GET("/hosts/:hostname/liveness", queryHandler.GetLiveness)
	v1.GET("/board", queryHandler.GetBoard)
	v1.GET("/free", queryHandler.GetFreeUsed)
	v1.GET("/finder", queryHandler.GetFinder)
	v1.GET("/leaderboard", queryHandler.GetLeaderboard)

	return engine, store, liveness
}

func submitBody(t *testing.T, engine *gin.Engine, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func samplePayload() []byte {
	return []byte(`{
		"hostname": "node-01",
		"query_time": 1700000000.5,
		"cpu_percent": 12.5,
		"vm_total_M": 64000,
		"gpus": [
			{
				"index": 0,
				"name": "NVIDIA A100",
				"utilization.gpu": 85,
				"memory.used": 30000,
				"memory.total": 40960,
				"users": {"alice": 29000}
			},
			{
				"index": 1,
				"name": "NVIDIA A100",
				"utilization.gpu": 0,
				"memory.used": 3,
				"memory.total": 40960,
				"users": {}
			}
		]
	}`)
}

func TestSubmit_AcceptsAndEchoesSnapshot(t *testing.T) {
	engine, store, _ := newTestStack()

	w := submitBody(t, engine, samplePayload(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var echoed model.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &echoed))
	assert.Equal(t, "node-01", echoed.Hostname)
	assert.Equal(t, 1700000000.5, echoed.QueryTime)
	assert.Len(t, echoed.GPUs, 2)
	assert.Equal(t, 12.5, echoed.HostMetrics["cpu_percent"])

	stored, err := store.Latest("node-01")
	require.NoError(t, err)
	assert.Equal(t, 85, stored.GPUs[0].Utilization)
}

func TestSubmit_AcceptsGzipBody(t *testing.T) {
	engine, store, _ := newTestStack()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(samplePayload())
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	w := submitBody(t, engine, buf.Bytes(), map[string]string{"Content-Encoding": "gzip"})
	require.Equal(t, http.StatusOK, w.Code)

	_, err = store.Latest("node-01")
	assert.NoError(t, err)
}

func TestSubmit_RejectsCorruptGzip(t *testing.T) {
	engine, store, _ := newTestStack()

	w := submitBody(t, engine, []byte("definitely not gzip"), map[string]string{"Content-Encoding": "gzip"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.Hosts())
}

func TestSubmit_RejectsUnknownEncoding(t *testing.T) {
	engine, _, _ := newTestStack()

	w := submitBody(t, engine, samplePayload(), map[string]string{"Content-Encoding": "br"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_RejectsMalformedJSON(t *testing.T) {
	engine, store, liveness := newTestStack()

	w := submitBody(t, engine, []byte(`{"hostname": `), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Rejected payloads leave no trace.
	assert.Empty(t, store.Hosts())
	_, err := liveness.LastSeen("node-01")
	assert.Error(t, err)
}

func TestSubmit_RejectsMissingHostname(t *testing.T) {
	engine, _, _ := newTestStack()

	w := submitBody(t, engine, []byte(`{"query_time": 100, "gpus": []}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "hostname")
}

func TestSubmit_RejectsDuplicateGPUIndex(t *testing.T) {
	engine, store, _ := newTestStack()

	payload := []byte(`{
		"hostname": "node-01",
		"query_time": 100,
		"gpus": [
			{"index": 0, "name": "A", "utilization.gpu": 0, "memory.used": 0, "memory.total": 1},
			{"index": 0, "name": "B", "utilization.gpu": 0, "memory.used": 0, "memory.total": 1}
		]
	}`)
	w := submitBody(t, engine, payload, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.Hosts())
}

func TestSubmit_FoldsProcessArrayUsers(t *testing.T) {
	engine, _, _ := newTestStack()

	payload := []byte(`{
		"hostname": "node-02",
		"query_time": 100,
		"gpus": [
			{
				"index": 0, "name": "A100", "utilization.gpu": 50,
				"memory.used": 25000, "memory.total": 40960,
				"users": [
					{"username": "alice", "gpu_memory_usage": 10000},
					{"username": "alice", "gpu_memory_usage": 15000}
				]
			}
		]
	}`)
	w := submitBody(t, engine, payload, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var echoed model.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &echoed))
	assert.Equal(t, 25000.0, echoed.GPUs[0].Users["alice"])
}
