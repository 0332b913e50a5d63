package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health: 200 when a model is loaded, 503 otherwise.
func (h *Handler) Health(c *gin.Context) {
	loaded := h.detector.Loaded()

	status := http.StatusOK
	state := "ok"
	if !loaded {
		status = http.StatusServiceUnavailable
		state = "unavailable"
	}

	c.JSON(status, gin.H{
		"status":       state,
		"model_loaded": loaded,
	})
}

// HealthDetail handles GET /health/detail with the resolved model state.
func (h *Handler) HealthDetail(c *gin.Context) {
	loaded := h.detector.Loaded()
	info := h.detector.Info()

	status := http.StatusOK
	state := "ok"
	if !loaded {
		status = http.StatusServiceUnavailable
		state = "unavailable"
	}

	c.JSON(status, gin.H{
		"status":         state,
		"model_loaded":   loaded,
		"model_path":     info.ModelPath,
		"model_format":   info.Format,
		"labels_loaded":  info.LabelsLoaded,
		"image_size":     []int{info.ImageWidth, info.ImageHeight},
		"num_classes":    info.NumClasses,
		"inference_mode": h.cfg.Inference.Mode,
	})
}

// Ping handles GET /api/ping, a liveness probe independent of model state.
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
