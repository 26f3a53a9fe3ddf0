package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a job progress update
type WSProgressMessage struct {
	Type             string    `json:"type"`
	JobID            string    `json:"jobId"`
	Status           JobStatus `json:"status"`
	Progress         int       `json:"progress"`
	Stage            string    `json:"stage,omitempty"`
	CompletedPrompts int       `json:"completedPrompts"`
	TotalPrompts     int       `json:"totalPrompts"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Status JobStatus   `json:"status"`
	Result interface{} `json:"result"`
}

// WSErrorMessage represents a job failure
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
