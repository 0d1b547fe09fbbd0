package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	BackendONNX       = "onnx"
	BackendTensorFlow = "tensorflow"
)

type Env struct {
	AppName            string
	AppEnv             string
	AppPort            int
	AppLogLevel        string
	MetricSamplingRate float64
	TelegrafAddress    string

	ModelBackend   string
	ModelPath      string
	ModelRequired  bool
	LabelsPath     string
	TopK           int
	ImageSize      int
	MaxUploadBytes int64
	MaxImagePixels int64

	OnnxLibraryPath string
	OnnxInputName   string
	OnnxOutputName  string
	TFTags          []string
	TFSignature     string
}

var (
	initialized bool
	once        sync.Once
	instance    Env
	initError   error
)

var logLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
	"FATAL": true, "PANIC": true, "DISABLED": true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "animelens-api")
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("APP_LOG_LEVEL", "INFO")
	v.SetDefault("APP_METRIC_SAMPLING_RATE", 1.0)
	v.SetDefault("TELEGRAF_ADDRESS", "localhost:8125")
	v.SetDefault("MODEL_BACKEND", BackendONNX)
	v.SetDefault("MODEL_PATH", "model/model.onnx")
	v.SetDefault("MODEL_REQUIRED", false)
	v.SetDefault("LABELS_PATH", "model/class_names.json")
	v.SetDefault("TOP_K", 5)
	v.SetDefault("IMAGE_SIZE", 224)
	v.SetDefault("MAX_UPLOAD_BYTES", int64(10<<20))
	v.SetDefault("MAX_IMAGE_PIXELS", int64(178956970))
	v.SetDefault("TF_TAGS", "serve")
	v.SetDefault("TF_SIGNATURE", "serving_default")
}

// Load reads the service configuration from the process environment.
func Load() (Env, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	port := 8000
	switch {
	case v.IsSet("APP_PORT"):
		port = v.GetInt("APP_PORT")
	case strings.TrimSpace(v.GetString("PORT")) != "":
		port = v.GetInt("PORT")
	}
	if port <= 0 || port > 65535 {
		return Env{}, fmt.Errorf("invalid APP_PORT: %d", port)
	}

	logLevel := strings.ToUpper(strings.TrimSpace(v.GetString("APP_LOG_LEVEL")))
	if !logLevels[logLevel] {
		return Env{}, fmt.Errorf("invalid APP_LOG_LEVEL: %q", logLevel)
	}

	samplingRate := v.GetFloat64("APP_METRIC_SAMPLING_RATE")
	if samplingRate < 0 || samplingRate > 1 {
		return Env{}, fmt.Errorf("invalid APP_METRIC_SAMPLING_RATE: %v", samplingRate)
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("MODEL_BACKEND")))
	if backend != BackendONNX && backend != BackendTensorFlow {
		return Env{}, fmt.Errorf("invalid MODEL_BACKEND: %q (want %q or %q)", backend, BackendONNX, BackendTensorFlow)
	}

	topK := v.GetInt("TOP_K")
	if topK <= 0 {
		return Env{}, fmt.Errorf("invalid TOP_K: %d", topK)
	}
	imageSize := v.GetInt("IMAGE_SIZE")
	if imageSize <= 0 {
		return Env{}, fmt.Errorf("invalid IMAGE_SIZE: %d", imageSize)
	}
	maxUpload := v.GetInt64("MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		return Env{}, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %d", maxUpload)
	}
	maxPixels := v.GetInt64("MAX_IMAGE_PIXELS")
	if maxPixels <= 0 {
		return Env{}, fmt.Errorf("invalid MAX_IMAGE_PIXELS: %d", maxPixels)
	}

	return Env{
		AppName:            strings.TrimSpace(v.GetString("APP_NAME")),
		AppEnv:             strings.TrimSpace(v.GetString("APP_ENV")),
		AppPort:            port,
		AppLogLevel:        logLevel,
		MetricSamplingRate: samplingRate,
		TelegrafAddress:    strings.TrimSpace(v.GetString("TELEGRAF_ADDRESS")),
		ModelBackend:       backend,
		ModelPath:          strings.TrimSpace(v.GetString("MODEL_PATH")),
		ModelRequired:      v.GetBool("MODEL_REQUIRED"),
		LabelsPath:         strings.TrimSpace(v.GetString("LABELS_PATH")),
		TopK:               topK,
		ImageSize:          imageSize,
		MaxUploadBytes:     maxUpload,
		MaxImagePixels:     maxPixels,
		OnnxLibraryPath:    strings.TrimSpace(v.GetString("ONNX_LIBRARY_PATH")),
		OnnxInputName:      strings.TrimSpace(v.GetString("ONNX_INPUT_NAME")),
		OnnxOutputName:     strings.TrimSpace(v.GetString("ONNX_OUTPUT_NAME")),
		TFTags:             splitList(v.GetString("TF_TAGS")),
		TFSignature:        strings.TrimSpace(v.GetString("TF_SIGNATURE")),
	}, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// InitEnv loads an optional .env file and then the environment. It panics on
// invalid configuration.
func InitEnv() {
	if initialized {
		log.Debug().Msg("Env already initialized!")
		return
	}
	once.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("failed to read .env file")
		}
		instance, initError = Load()
		if initError != nil {
			log.Panic().Err(initError).Msg("failed to load env")
		}
		initialized = true
	})
}

func Instance() Env {
	InitEnv()
	if initError != nil {
		panic(initError)
	}
	return instance
}
