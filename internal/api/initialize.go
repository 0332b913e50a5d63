package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type initializeRequest struct {
	ModelPath        string `json:"model_path"`
	ClassIndicesPath string `json:"class_indices_path"`
}

// InitializeModel handles POST /api/initialize-model: loads a model (and
// optionally a label map) into the shared detector. Expected input problems
// come back as status "error" with HTTP 200; the detector stays in its
// previous state on failure.
func (h *Handler) InitializeModel(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "Invalid JSON in request body",
		})
		return
	}

	if req.ModelPath == "" {
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "model_path is required",
		})
		return
	}

	if _, err := os.Stat(req.ModelPath); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": fmt.Sprintf("Model file not found: %s", req.ModelPath),
		})
		return
	}

	if err := h.detector.Initialize(req.ModelPath, req.ClassIndicesPath); err != nil {
		h.logger.Error("model initialization failed",
			zap.String("model_path", req.ModelPath), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "Failed to load model",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Model initialized successfully",
	})
}
