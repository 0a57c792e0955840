package api

// ==================== Cost Estimates ====================

// EstimateRequest represents request to quote a storage purchase
type EstimateRequest struct {
	SourceChain      string  `json:"source_chain"`
	PayloadSizeKB    int64   `json:"payload_size_kb"`
	RetentionPeriods int     `json:"retention_periods"`
	Deletable        bool    `json:"deletable"`
	Budget           *string `json:"budget,omitempty"` // optional ceiling, source-token units
}

// ==================== Store ====================

// StoreRequest represents request to run a storage purchase. The payload
// travels base64-encoded.
type StoreRequest struct {
	SourceChain      string  `json:"source_chain"`
	Payload          string  `json:"payload"`
	RetentionPeriods int     `json:"retention_periods"`
	Deletable        bool    `json:"deletable"`
	Budget           *string `json:"budget,omitempty"`
}

// ==================== Error Response ====================

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==================== Health Check ====================

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Mode    string `json:"mode,omitempty"`
}
