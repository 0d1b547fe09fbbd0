package metric

import (
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

const (
	PredictRequestCount   = "predict_request_count"
	PredictRequestLatency = "predict_request_latency"
	InferenceLatency      = "inference_latency"
	ModelLoaded           = "model_loaded"

	TagStatus  = "status"
	TagBackend = "backend"
)

var (
	// it is safe to use one client from multiple goroutines simultaneously
	statsDClient = getDefaultClient()
	samplingRate = 1.0
	once         sync.Once
)

// Init points the statsd client at the telegraf address and attaches the
// env and service global tags.
func Init(name, env, telegrafAddress string, rate float64) {
	once.Do(func() {
		samplingRate = rate
		globalTags := []string{TagAsString("env", env), TagAsString("service", name)}

		client, err := statsd.New(telegrafAddress, statsd.WithTags(globalTags))
		if err != nil {
			log.Error().Err(err).Msg("StatsD client initialization failed, metrics will be unavailable")
			return
		}
		statsDClient = client
		log.Info().Msgf("Metrics client initialized with telegraf address - %s, global tags - %v, and "+
			"sampling rate - %f", telegrafAddress, globalTags, samplingRate)
	})
}

func getDefaultClient() *statsd.Client {
	client, err := statsd.New("localhost:8125")
	if err != nil {
		client, _ = statsd.New("localhost:8125", statsd.WithoutTelemetry())
	}
	return client
}

func TagAsString(key, value string) string {
	return key + ":" + value
}

// Timing sends timing information
func Timing(name string, value time.Duration, tags []string) {
	if statsDClient == nil {
		return
	}
	if err := statsDClient.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd timing")
	}
}

// Count Increases metric counter by value
func Count(name string, value int64, tags []string) {
	if statsDClient == nil {
		return
	}
	if err := statsDClient.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd count")
	}
}

// Incr Increases metric counter by 1
func Incr(name string, tags []string) {
	Count(name, 1, tags)
}

func Gauge(name string, value float64, tags []string) {
	if statsDClient == nil {
		return
	}
	if err := statsDClient.Gauge(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd gauge")
	}
}
