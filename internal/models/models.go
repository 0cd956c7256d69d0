package models

// ConfigStatus describes the backend's credential and model configuration as
// reported by GET /api/config/status.
type ConfigStatus struct {
	GeminiAPIKeySet bool       `json:"gemini_api_key_set"`
	DBURLSet        bool       `json:"db_url_set"`
	GeminiModel     string     `json:"gemini_model"`
	Validation      Validation `json:"validation"`
}

// Validation summarises whether the backend considers itself fully
// configured. The backend promises is_valid only when both credentials are
// set and missing is empty, but consumers must stay correct even if the
// payload is inconsistent.
type Validation struct {
	IsValid bool     `json:"is_valid"`
	Missing []string `json:"missing,omitempty"`
}
