package api

// Transport-only wire shapes. The request_transaction request and response
// bodies live next to the engine in pkg/coordinator.

// errorEnvelope is the body of every non-200 response.
type errorEnvelope struct {
	Code             string            `json:"code"`
	Reason           string            `json:"reason"`
	ValidationErrors []validationError `json:"validationErrors,omitempty"`
}

// validationError points into the request body where that helps the caller.
type validationError struct {
	Field    string   `json:"field,omitempty"`
	Code     string   `json:"code"`
	Reason   string   `json:"reason"`
	Entities []string `json:"entities,omitempty"`
}

// SoftCancelsRequest is the payload for POST /v2/soft_cancels.
type SoftCancelsRequest struct {
	OrderHashes []string `json:"orderHashes"`
}

// SoftCancelsResponse returns the subset of the queried hashes that are
// currently soft-cancelled.
type SoftCancelsResponse struct {
	OrderHashes []string `json:"orderHashes"`
}

// ConfigurationResponse is the body of GET /v2/configuration.
type ConfigurationResponse struct {
	ExpirationDurationSeconds int64   `json:"expirationDurationSeconds"`
	SelectiveDelayMs          int64   `json:"selectiveDelayMs"`
	SupportedChainIds         []int64 `json:"supportedChainIds"`
}

// WSSubscribeRequest is sent by a client to manage channel subscriptions,
// e.g. {"op": "subscribe", "channels": ["chain:1337"]}.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}
