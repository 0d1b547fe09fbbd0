package model

// Prediction is one ranked entry of a /predict response.
type Prediction struct {
	Movie      string  `json:"movie"`
	Confidence float32 `json:"confidence"`
}

type PredictionResponse struct {
	Success     bool         `json:"success"`
	Predictions []Prediction `json:"predictions,omitempty"`
	Error       string       `json:"error,omitempty"`
}

type ServiceStatus struct {
	ModelLoaded bool     `json:"model_loaded"`
	NumClasses  int      `json:"num_classes"`
	Backend     string   `json:"backend"`
	TopK        int      `json:"top_k"`
	Classes     []string `json:"classes,omitempty"`
}

type RootResponse struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
	Status    ServiceStatus     `json:"status"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}
