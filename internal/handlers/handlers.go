package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/animelens-api/internal/metric"
	"github.com/Brownie44l1/animelens-api/internal/model"
	"github.com/Brownie44l1/animelens-api/internal/pipeline"
)

const (
	uploadField = "file"
	// multipart framing allowance on top of the file size limit
	multipartOverhead = 1 << 20
)

type Handler struct {
	pipeline       *pipeline.Pipeline
	labels         model.LabelSet
	maxUploadBytes int64
}

func NewHandler(p *pipeline.Pipeline, labels model.LabelSet, maxUploadBytes int64) *Handler {
	return &Handler{
		pipeline:       p,
		labels:         labels,
		maxUploadBytes: maxUploadBytes,
	}
}

// Root describes the service. ?verbose=true adds the full class list.
func (h *Handler) Root(c *gin.Context) {
	status := model.ServiceStatus{
		ModelLoaded: h.pipeline.Ready(),
		NumClasses:  h.labels.Len(),
		Backend:     h.pipeline.Backend(),
		TopK:        h.pipeline.TopK(),
	}
	if verbose, _ := strconv.ParseBool(c.Query("verbose")); verbose {
		status.Classes = h.labels.Names()
	}
	c.JSON(http.StatusOK, model.RootResponse{
		Message: "Welcome to AnimeLens API",
		Endpoints: map[string]string{
			"/predict": "POST - Upload an image to predict anime movie",
			"/health":  "GET - Health check",
		},
		Status: status,
	})
}

func (h *Handler) Health(c *gin.Context) {
	if !h.pipeline.Ready() {
		c.JSON(http.StatusServiceUnavailable, model.HealthResponse{Status: "degraded", ModelLoaded: false})
		return
	}
	c.JSON(http.StatusOK, model.HealthResponse{Status: "healthy", ModelLoaded: true})
}

func (h *Handler) Predict(c *gin.Context) {
	start := time.Now()
	status := h.predict(c)
	metric.Incr(metric.PredictRequestCount, []string{metric.TagAsString(metric.TagStatus, strconv.Itoa(status))})
	metric.Timing(metric.PredictRequestLatency, time.Since(start), nil)
}

func (h *Handler) predict(c *gin.Context) int {
	if !h.pipeline.Ready() {
		log.Error().Msg("Model not loaded")
		return fail(c, http.StatusServiceUnavailable, "Model not loaded")
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	header, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", h.maxUploadBytes))
		}
		return fail(c, http.StatusBadRequest, "No image file provided. Use 'file' as the form field name")
	}
	if header.Size > h.maxUploadBytes {
		return fail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", h.maxUploadBytes))
	}
	log.Info().Str("filename", header.Filename).Msg("Received prediction request")

	file, err := header.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "Failed to open uploaded file")
	}
	defer file.Close()

	contents, err := io.ReadAll(file)
	if err != nil {
		return fail(c, http.StatusBadRequest, "Failed to read uploaded file")
	}
	if len(contents) == 0 {
		return fail(c, http.StatusBadRequest, "Uploaded file is empty")
	}
	log.Debug().Int("bytes", len(contents)).Msg("Read upload")

	preds, err := h.pipeline.Predict(c.Request.Context(), contents)
	switch {
	case err == nil:
	case pipeline.IsClientFault(err):
		log.Warn().Err(err).Msg("Rejected upload")
		return fail(c, http.StatusBadRequest, "Error processing image: "+err.Error())
	case errors.Is(err, pipeline.ErrModelNotLoaded):
		return fail(c, http.StatusServiceUnavailable, "Model not loaded")
	default:
		log.Error().Err(err).Msg("Error during prediction")
		return fail(c, http.StatusInternalServerError, err.Error())
	}

	results := make([]model.Prediction, len(preds))
	for i, p := range preds {
		results[i] = model.Prediction{Movie: p.Label, Confidence: p.Score}
	}
	if len(results) > 0 {
		log.Info().Str("movie", results[0].Movie).Float32("confidence", results[0].Confidence).Msg("Top prediction")
	}
	c.JSON(http.StatusOK, model.PredictionResponse{Success: true, Predictions: results})
	return http.StatusOK
}

func fail(c *gin.Context, status int, message string) int {
	c.JSON(status, model.PredictionResponse{Success: false, Error: message})
	return status
}
