package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gpuwatch/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, engine *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestGetLatest_UnknownHostIs404(t *testing.T) {
	engine, _, _ := newTestStack()

	w := get(t, engine, "/v1/hosts/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetLatest_ReturnsLastSubmission(t *testing.T) {
	engine, _, _ := newTestStack()

	require.Equal(t, http.StatusOK, submitBody(t, engine, samplePayload(), nil).Code)

	w := get(t, engine, "/v1/hosts/node-01")
	require.Equal(t, http.StatusOK, w.Code)

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "node-01", snap.Hostname)
	assert.Len(t, snap.GPUs, 2)
}

func TestGetHistory_SinceFilters(t *testing.T) {
	engine, _, _ := newTestStack()

	for _, ts := range []string{"100", "200", "300"} {
		payload := []byte(`{"hostname": "node-01", "query_time": ` + ts + `, "gpus": []}`)
		require.Equal(t, http.StatusOK, submitBody(t, engine, payload, nil).Code)
	}

	w := get(t, engine, "/v1/hosts/node-01/history?since=200")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Hostname string            `json:"hostname"`
		Count    int               `json:"count"`
		History  []*model.Snapshot `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 200.0, resp.History[0].QueryTime)
	assert.Equal(t, 300.0, resp.History[1].QueryTime)
}

func TestGetHistory_BadSinceIs400(t *testing.T) {
	engine, _, _ := newTestStack()

	w := get(t, engine, "/v1/hosts/node-01/history?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetHistory_UnknownHostIsEmpty(t *testing.T) {
	engine, _, _ := newTestStack()

	w := get(t, engine, "/v1/hosts/ghost/history")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestGetLiveness_FreshHostIsLive(t *testing.T) {
	engine, _, _ := newTestStack()

	require.Equal(t, http.StatusOK, submitBody(t, engine, samplePayload(), nil).Code)

	w := get(t, engine, "/v1/hosts/node-01/liveness")
	require.Equal(t, http.StatusOK, w.Code)

	var info struct {
		LastSeen time.Time `json:"last_seen"`
		IsLive   bool      `json:"is_live"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.True(t, info.IsLive)
	assert.WithinDuration(t, time.Now(), info.LastSeen, time.Minute)
}

func TestGetLiveness_UnknownHostIs404(t *testing.T) {
	engine, _, _ := newTestStack()

	w := get(t, engine, "/v1/hosts/ghost/liveness")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListHosts_ReportsAllKnownHosts(t *testing.T) {
	engine, _, _ := newTestStack()

	require.Equal(t, http.StatusOK, submitBody(t, engine, samplePayload(), nil).Code)
	other := []byte(`{"hostname": "node-02", "query_time": 100, "gpus": []}`)
	require.Equal(t, http.StatusOK, submitBody(t, engine, other, nil).Code)

	w := get(t, engine, "/v1/hosts")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Hosts []struct {
			Hostname  string `json:"hostname"`
			Connected bool   `json:"connected"`
		} `json:"hosts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Hosts, 2)
	assert.Equal(t, "node-01", resp.Hosts[0].Hostname)
	assert.Equal(t, "node-02", resp.Hosts[1].Hostname)
	assert.True(t, resp.Hosts[0].Connected)
}

func TestGetBoard_ReturnsLatestPerHost(t *testing.T) {
	engine, _, _ := newTestStack()

	require.Equal(t, http.StatusOK, submitBody(t, engine, samplePayload(), nil).Code)

	w := get(t, engine, "/v1/board")
	require.Equal(t, http.StatusOK, w.Code)

	var board map[string]*model.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	require.Contains(t, board, "node-01")
	assert.Equal(t, 1700000000.5, board["node-01"].QueryTime)
}

func TestGetFreeUsed_CountsIdleAndBusy(t *testing.T) {
	engine, _, _ := newTestStack()

	// samplePayload has one busy and one idle A100.
	require.Equal(t, http.StatusOK, submitBody(t, engine, samplePayload(), nil).Code)

	w := get(t, engine, "/v1/free")
	require.Equal(t, http.StatusOK, w.Code)

	var tally map[string]struct {
		Free int `json:"free"`
		Used int `json:"used"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tally))
	require.Contains(t, tally, "NVIDIA A100")
	assert.Equal(t, 1, tally["NVIDIA A100"].Free)
	assert.Equal(t, 1, tally["NVIDIA A100"].Used)
}

func TestGetFinder_ListsHostsWithIdleGPUs(t *testing.T) {
	engine, _, _ := newTestStack()

	require.Equal(t, http.StatusOK, submitBody(t, engine, samplePayload(), nil).Code)

	w := get(t, engine, "/v1/finder")
	require.Equal(t, http.StatusOK, w.Code)

	var finder map[string][]struct {
		Hostname  string `json:"hostname"`
		IdleCount int    `json:"idle_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &finder))
	require.Contains(t, finder, "NVIDIA A100")
	require.Len(t, finder["NVIDIA A100"], 1)
	assert.Equal(t, "node-01", finder["NVIDIA A100"][0].Hostname)
	assert.Equal(t, 1, finder["NVIDIA A100"][0].IdleCount)
}

func TestGetLeaderboard_RanksOccupants(t *testing.T) {
	engine, _, _ := newTestStack()

	require.Equal(t, http.StatusOK, submitBody(t, engine, samplePayload(), nil).Code)

	w := get(t, engine, "/v1/leaderboard")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Leaderboard []struct {
			User  string `json:"user"`
			Count int    `json:"count"`
		} `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Leaderboard, 1)
	assert.Equal(t, "alice", resp.Leaderboard[0].User)
	assert.Equal(t, 1, resp.Leaderboard[0].Count)
}

func TestGetTopUsers_ReturnsPerSlotWinner(t *testing.T) {
	engine, _, _ := newTestStack()

	require.Equal(t, http.StatusOK, submitBody(t, engine, samplePayload(), nil).Code)

	w := get(t, engine, "/v1/hosts/node-01/top")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Hostname string            `json:"hostname"`
		TopUsers map[string]string `json:"top_users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.TopUsers["0"])
}
