package models

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse carries the backend's answer to a natural-language query,
// including the intermediate SQL stages for display in the chat transcript.
type QueryResponse struct {
	GeneratedSQL string `json:"generated_sql,omitempty"`
	ValidatedSQL string `json:"validated_sql,omitempty"`
	RowCount     *int   `json:"row_count,omitempty"`
	Answer       string `json:"answer,omitempty"`
	Error        string `json:"error,omitempty"`
	Stage        string `json:"stage,omitempty"`
}

// TableFetchRequest is the body of POST /api/data/fetch.
type TableFetchRequest struct {
	Tables []string `json:"tables"`
	Limit  int      `json:"limit"`
}

// TableFetchResponse maps table names to their fetched rows.
type TableFetchResponse struct {
	Status  string                      `json:"status"`
	Message string                      `json:"message,omitempty"`
	Data    map[string][]map[string]any `json:"data,omitempty"`
}

// APIKeyRequest is the body of the api-key settings endpoints.
type APIKeyRequest struct {
	APIKey string `json:"api_key"`
}

// DBURLRequest is the body of the db-url settings endpoints.
type DBURLRequest struct {
	DBURL string `json:"db_url"`
}

// SettingsResponse is the backend's acknowledgement for settings writes.
type SettingsResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ValidationResult is the backend's verdict on a candidate credential.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}
