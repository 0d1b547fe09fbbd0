package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/animelens-api/internal/config"
	"github.com/Brownie44l1/animelens-api/internal/handlers"
	"github.com/Brownie44l1/animelens-api/internal/logger"
	"github.com/Brownie44l1/animelens-api/internal/metric"
	"github.com/Brownie44l1/animelens-api/internal/model"
	"github.com/Brownie44l1/animelens-api/internal/pipeline"
	"github.com/Brownie44l1/animelens-api/internal/preprocess"
)

func main() {
	config.InitEnv()
	env := config.Instance()
	logger.Init(env.AppName, env.AppLogLevel)
	metric.Init(env.AppName, env.AppEnv, env.TelegrafAddress, env.MetricSamplingRate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	labels, err := model.LoadLabels(ctx, env.LabelsPath)
	if err != nil {
		log.Warn().Err(err).Msg("Error loading class names, using fallback class names")
		labels = model.FallbackLabelSet()
	}
	log.Info().Int("count", labels.Len()).Msg("Loaded class names")

	log.Info().Str("backend", env.ModelBackend).Str("path", env.ModelPath).Msg("Loading model")
	classifier, err := model.LoadClassifier(ctx, model.LoadOptions{
		Backend:   model.Backend(env.ModelBackend),
		Path:      env.ModelPath,
		ImageSize: env.ImageSize,
		ONNX: model.ONNXOptions{
			LibraryPath: env.OnnxLibraryPath,
			InputName:   env.OnnxInputName,
			OutputName:  env.OnnxOutputName,
		},
		TensorFlow: model.TensorFlowOptions{
			Tags:      env.TFTags,
			Signature: env.TFSignature,
		},
	})
	if err != nil {
		if env.ModelRequired {
			log.Fatal().Err(err).Msg("Failed to load model")
		}
		log.Error().Err(err).Msg("Failed to load model, serving in degraded mode")
		metric.Gauge(metric.ModelLoaded, 0, nil)
	} else {
		log.Info().Int("classes", classifier.OutputWidth()).Msg("Model loaded successfully")
		metric.Gauge(metric.ModelLoaded, 1, nil)
		defer func() {
			if err := classifier.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to release model")
			}
		}()
	}

	p, err := newPipeline(env, classifier, labels)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize inference pipeline")
	}

	handler := handlers.NewHandler(p, labels, env.MaxUploadBytes)
	server := &http.Server{
		Addr:    ":" + strconv.Itoa(env.AppPort),
		Handler: handlers.NewRouter(handler, env.AppEnv),
	}

	go func() {
		log.Info().Int("port", env.AppPort).Msg("Starting AnimeLens API server")
		log.Info().Msg("Endpoints: GET / | GET /health | POST /predict (multipart field 'file')")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// newPipeline releases classifier when the pipeline cannot be built, since
// the caller exits through log.Fatal and skips its deferred Close.
func newPipeline(env config.Env, classifier model.Classifier, labels model.LabelSet) (*pipeline.Pipeline, error) {
	pre := preprocess.New(env.ImageSize, preprocess.WithMaxPixels(env.MaxImagePixels))
	p, err := pipeline.New(pre, classifier, labels, env.TopK, env.ModelBackend)
	if err != nil {
		if classifier != nil {
			if cerr := classifier.Close(); cerr != nil {
				log.Error().Err(cerr).Msg("Failed to release model")
			}
		}
		return nil, err
	}
	return p, nil
}
