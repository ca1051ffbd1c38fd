package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/plugin-registry/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// InvokedSubject overrides the global invocation event subject (e.g. from INVOKED_EVENT_SUBJECT).
	// Granular subjects are built beneath it.
	InvokedSubject string
}

// CommsPublisher publishes invocation events to COMMS subjects.
type CommsPublisher struct {
	nc             *comms.Conn
	invokedSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectInvokedEvent
	if opts != nil && opts.InvokedSubject != "" {
		subject = opts.InvokedSubject
	}
	return &CommsPublisher{nc: nc, invokedSubject: subject}
}

// PublishInvoked publishes an InvocationEvent to both the granular
// and global invocation subjects.
func (p *CommsPublisher) PublishInvoked(_ context.Context, event *InvocationEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	granularSubject := commsutil.BuildInvokedSubject(p.invokedSubject, event.Group, event.Name)
	if err := p.nc.Publish(granularSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, granularSubject, err))
		return err
	}

	if err := p.nc.Publish(p.invokedSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.invokedSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published invocation event for %s", commsPublisherLogPrefix, event.Operation))
	return nil
}
