package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage is the minimal envelope clients send (ping/pong)
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage is pushed at each worker progress checkpoint
type WSProgressMessage struct {
	Type     string    `json:"type"`
	JobID    string    `json:"jobId"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Step     string    `json:"step,omitempty"`
}

// WSCompleteMessage is pushed when a job finishes successfully
type WSCompleteMessage struct {
	Type    string   `json:"type"`
	JobID   string   `json:"jobId"`
	Outputs []string `json:"outputs"`
}

// WSErrorMessage is pushed when a job fails
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
