package commsutil

import "fmt"

// Default COMMS subjects.
const (
	SubjectInvoke       = "plugins.invoke"
	SubjectInvokedEvent = "plugins.invoked"
)

// BuildInvokedSubject builds the granular invocation event subject for one operation.
func BuildInvokedSubject(prefix, group, operation string) string {
	if prefix == "" {
		prefix = SubjectInvokedEvent
	}
	return fmt.Sprintf("%s.%s.%s", prefix, group, operation)
}
