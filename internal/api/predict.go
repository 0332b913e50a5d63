package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/plantvision/leaf-server/internal/detector"
	"github.com/plantvision/leaf-server/internal/runner"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PredictResponse is the body returned by POST /. Confidence is a percentage
// in [0,100].
type PredictResponse struct {
	Success        bool    `json:"success"`
	PredictedClass string  `json:"predicted_class,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	Message        string  `json:"message,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Predict handles POST /: one uploaded image in the multipart field "image",
// one prediction, one JSON response. The upload lives in the temp store only
// for the duration of the request.
func (h *Handler) Predict(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusOK, PredictResponse{Success: false, Error: "No file provided"})
		return
	}

	if !h.subprocessMode() && !h.detector.Loaded() {
		c.JSON(http.StatusServiceUnavailable, PredictResponse{
			Success: false,
			Error:   "ML model not loaded. Please initialize the model first.",
		})
		return
	}

	path, cleanup, err := h.saveUpload(file)
	if err != nil {
		h.logger.Error("failed to store upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, PredictResponse{
			Success: false,
			Error:   "server error, details logged",
		})
		return
	}
	defer cleanup()

	if h.subprocessMode() {
		h.predictViaSubprocess(c, path)
		return
	}

	result, err := h.detector.Predict(path)
	if err != nil {
		h.respondPredictError(c, err)
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		Success:        true,
		PredictedClass: result.Label,
		Confidence:     float64(result.Confidence) * 100,
		Message:        fmt.Sprintf("Detected: %s (Confidence: %.2f%%)", result.Label, result.Confidence*100),
	})
}

func (h *Handler) predictViaSubprocess(c *gin.Context, path string) {
	outcome, err := h.runner.Predict(c.Request.Context(), path)
	if err != nil {
		h.logger.Error("subprocess runner misconfigured", zap.Error(err))
		c.JSON(http.StatusInternalServerError, PredictResponse{
			Success: false,
			Error:   "server error, details logged",
		})
		return
	}

	if outcome.Failed() {
		status := http.StatusInternalServerError
		if outcome.Kind == runner.KindTimeout {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, PredictResponse{Success: false, Error: outcome.Error})
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		Success:        true,
		PredictedClass: outcome.Disease,
		Confidence:     outcome.Confidence * 100,
		Message:        fmt.Sprintf("Detected: %s (Confidence: %.2f%%)", outcome.Disease, outcome.Confidence*100),
	})
}

// PredictBatch handles POST /api/predict-batch: any number of files in the
// repeated multipart field "images", predicted independently with per-item
// error isolation.
func (h *Handler) PredictBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "failed to parse multipart form"})
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "No files provided"})
		return
	}

	if !h.detector.Loaded() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "ML model not loaded. Please initialize the model first.",
		})
		return
	}

	paths := make([]string, 0, len(files))
	names := make(map[string]string, len(files))
	for _, file := range files {
		path, cleanup, err := h.saveUpload(file)
		if err != nil {
			h.logger.Error("failed to store upload", zap.Error(err))
			continue
		}
		defer cleanup()
		paths = append(paths, path)
		names[path] = file.Filename
	}

	items := h.detector.PredictBatch(paths)

	type batchEntry struct {
		Filename       string  `json:"filename"`
		Success        bool    `json:"success"`
		PredictedClass string  `json:"predicted_class,omitempty"`
		Confidence     float64 `json:"confidence,omitempty"`
		Error          string  `json:"error,omitempty"`
	}

	results := make([]batchEntry, 0, len(items))
	for _, item := range items {
		entry := batchEntry{Filename: names[item.ImagePath]}
		if item.Err != nil {
			entry.Error = userFacingError(item.Err)
		} else {
			entry.Success = true
			entry.PredictedClass = item.Result.Label
			entry.Confidence = float64(item.Result.Confidence) * 100
		}
		results = append(results, entry)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

// saveUpload copies one multipart file into the temp store and returns its
// path plus a cleanup func.
func (h *Handler) saveUpload(file *multipart.FileHeader) (string, func(), error) {
	src, err := file.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read upload: %w", err)
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = mimetype.Detect(content).Extension()
	}

	path, err := h.uploads.SaveTemp(ext, content)
	if err != nil {
		return "", nil, err
	}

	return path, func() { h.uploads.Remove(path) }, nil
}

func (h *Handler) respondPredictError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, detector.ErrModelNotLoaded):
		c.JSON(http.StatusServiceUnavailable, PredictResponse{
			Success: false,
			Error:   "ML model not loaded. Please initialize the model first.",
		})
	case errors.Is(err, detector.ErrImageDecode):
		c.JSON(http.StatusOK, PredictResponse{
			Success: false,
			Error:   "Invalid image format. Supported: JPEG, PNG, BMP",
		})
	default:
		h.logger.Error("prediction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, PredictResponse{
			Success: false,
			Error:   "server error, details logged",
		})
	}
}

func userFacingError(err error) string {
	switch {
	case errors.Is(err, detector.ErrModelNotLoaded):
		return "ML model not loaded"
	case errors.Is(err, detector.ErrImageDecode):
		return "Invalid image format. Supported: JPEG, PNG, BMP"
	default:
		return "prediction failed"
	}
}
