// Package dispatcher invokes registered operations by name and routes incoming
// COMMS requests to the registry.
package dispatcher

import (
	"encoding/json"
	"time"
)

// Request is the JSON envelope for incoming COMMS requests.
type Request struct {
	ID        string                 `json:"id"`
	Method    string                 `json:"method"`
	Operation string                 `json:"operation,omitempty"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Params    json.RawMessage        `json:"params,omitempty"`
	Ctx       *InvocationContext     `json:"ctx,omitempty"`
}

// Response is the JSON envelope for COMMS responses.
type Response struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	DeadlineMs    int    `json:"deadlineMs,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// Timeout returns the caller's requested budget: DeadlineMs wins over TimeoutMs.
// Zero means the caller did not ask for one.
func (c *InvocationContext) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	ms := c.DeadlineMs
	if ms <= 0 {
		ms = c.TimeoutMs
	}
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// ListOutput is the result of the list method.
type ListOutput struct {
	Groups  interface{}       `json:"groups"`
	Aliases map[string]string `json:"aliases,omitempty"`
}
