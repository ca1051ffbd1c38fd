// Package events defines invocation events and the publishers that deliver them.
package events

// InvocationEvent is emitted once for every finished operation invocation.
type InvocationEvent struct {
	InvocationID string `json:"invocationId"`
	RequestID    string `json:"requestId,omitempty"`
	Operation    string `json:"operation"`
	Group        string `json:"group"`
	Name         string `json:"name"`
	Ok           bool   `json:"ok"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	DurationMs   int64  `json:"durationMs"`
	Timestamp    string `json:"timestamp"`
}
