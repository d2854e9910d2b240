package server

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK    bool `json:"ok"`
	Redis bool `json:"redis"`
}

// WebhookResponse acknowledges a notification delivery
type WebhookResponse struct {
	Accepted int `json:"accepted"` // events queued for processing
}

// SwitchUpsertRequest creates or updates a runtime switch
type SwitchUpsertRequest struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// SwitchUpdateRequest updates the switch named in the path
type SwitchUpdateRequest struct {
	Value *bool `json:"value"`
}
