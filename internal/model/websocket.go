package model

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
	WSMessageTypeError  = "error"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// WSMessage is the minimal envelope for client-sent frames.
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage is pushed on every lifecycle transition of an entity.
type WSStatusMessage struct {
	Type     string `json:"type"`
	EntityID string `json:"entityId"`
	Status   Status `json:"status"`
	Step     string `json:"step,omitempty"`
}

// WSErrorMessage is pushed when an entity ends in failed.
type WSErrorMessage struct {
	Type     string  `json:"type"`
	EntityID string  `json:"entityId"`
	Error    WSError `json:"error"`
}

// WSError carries the failure detail.
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
