package db

import "time"

// Invocation represents a row in the invocations table.
type Invocation struct {
	ID           string    `json:"id"`
	RequestID    *string   `json:"request_id,omitempty"`
	Operation    string    `json:"operation"`
	GroupName    string    `json:"group_name"`
	Name         string    `json:"name"`
	Ok           bool      `json:"ok"`
	ErrorCode    *string   `json:"error_code,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Created      time.Time `json:"created"`
}

// OperationStat aggregates the invocations of one operation.
type OperationStat struct {
	Operation     string    `json:"operation"`
	Calls         int64     `json:"calls"`
	Failures      int64     `json:"failures"`
	AvgDurationMs float64   `json:"avg_duration_ms"`
	LastInvoked   time.Time `json:"last_invoked"`
}

// ListInvocationsParams holds filters for ListInvocations.
type ListInvocationsParams struct {
	Operation  string
	OnlyFailed bool
	Limit      int
}
