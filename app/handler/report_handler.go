package handler

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"

	"gpuwatch/internal/model"
	"gpuwatch/internal/service"

	"github.com/gin-gonic/gin"
)

// maxPayloadBytes bounds a single submission after decompression. A full
// 8-GPU host with dozens of users is a few KB; anything near the limit is
// hostile.
const maxPayloadBytes = 4 << 20

// ReportHandler accepts snapshot submissions from reporting hosts.
type ReportHandler struct {
	ingestService *service.IngestService
}

// NewReportHandler creates a new report handler.
func NewReportHandler(ingestService *service.IngestService) *ReportHandler {
	return &ReportHandler{ingestService: ingestService}
}

// Submit ingests one snapshot.
// POST /submit
//
// The body is JSON, optionally gzip-compressed (Content-Encoding: gzip).
// Decompression happens here; the gateway only ever sees plain bytes. The
// accepted, normalized snapshot is echoed back to the agent.
func (h *ReportHandler) Submit(c *gin.Context) {
	payload, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.ingestService.Ingest(c.Request.Context(), payload)
	if err != nil {
		c.JSON(ingestStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snap)
}

func readBody(c *gin.Context) ([]byte, error) {
	reader := io.Reader(c.Request.Body)

	switch c.GetHeader("Content-Encoding") {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, errors.New("body is not valid gzip")
		}
		defer gz.Close()
		reader = gz
	default:
		return nil, errors.New("unsupported content encoding")
	}

	payload, err := io.ReadAll(io.LimitReader(reader, maxPayloadBytes+1))
	if err != nil {
		return nil, errors.New("failed to read body")
	}
	if len(payload) > maxPayloadBytes {
		return nil, errors.New("payload too large")
	}
	return payload, nil
}

// ingestStatus maps gateway errors to HTTP status codes. Every ingest
// error is the client's fault; the aggregator itself never fails an append.
func ingestStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrMalformedPayload),
		errors.Is(err, model.ErrMissingHostname),
		errors.Is(err, model.ErrDuplicateGPUIndex):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
