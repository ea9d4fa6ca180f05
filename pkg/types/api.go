package types

// SubmitRequest is the payload accepted by POST /requests.
type SubmitRequest struct {
	// Optional client-supplied request id; generated when empty.
	RequestID string `json:"request_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	// User tier: vip, premium or normal (default normal).
	Tier Tier `json:"tier,omitempty"`
	// Task type: skill or agent (default agent).
	TaskType TaskType `json:"task_type,omitempty"`
	// Optional finer-grained classification used for timeout selection
	// (e.g., "chat", "image_generation").
	Classification string `json:"classification,omitempty"`
	// Routing decision; resolved against the active profile when only a
	// role is given.
	Routing RoutingDecision `json:"routing,omitempty"`
	// Input payload handed to the executor verbatim.
	Input string `json:"input"`
	// Opaque execution context forwarded to the executor.
	Context map[string]any `json:"context,omitempty"`
	// Optional per-request execution timeout in milliseconds; 0 uses the
	// class default.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

// SubmitResponse is returned by POST /requests when not waiting inline.
type SubmitResponse struct {
	RequestID string `json:"request_id"`
	// Position in the queue at admission time (0 = next to run).
	Position int `json:"position"`
}

// ResultResponse wraps a collected execution result.
type ResultResponse struct {
	RequestID string           `json:"request_id"`
	Result    *ExecutionResult `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
