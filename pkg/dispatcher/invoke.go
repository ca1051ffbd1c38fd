package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/plugin-registry/pkg/binder"
	"github.com/morezero/plugin-registry/pkg/cancellation"
	"github.com/morezero/plugin-registry/pkg/events"
	"github.com/morezero/plugin-registry/pkg/registry"
	"github.com/morezero/plugin-registry/pkg/semtype"
)

const invokeLogPrefix = "dispatcher:invoke"

// InvocationResult is the outcome of one Invoke: either Ok with Value, or an Error.
type InvocationResult struct {
	Ok    bool                    `json:"ok"`
	Value any                     `json:"value,omitempty"`
	Error *registry.RegistryError `json:"error,omitempty"`
}

func success(v any) *InvocationResult {
	return &InvocationResult{Ok: true, Value: v}
}

func failure(err error) *InvocationResult {
	if regErr, ok := registry.AsRegistryError(err); ok {
		return &InvocationResult{Error: regErr}
	}
	return &InvocationResult{Error: &registry.RegistryError{Code: registry.KindImplementationError, Message: err.Error()}}
}

// Invoke looks up name, binds bag to its parameters and runs the implementation.
//
// deadline > 0 bounds the call. Otherwise the manifest timeout for the operation
// applies, then the dispatcher default; an effective timeout of zero leaves only
// ctx in charge. Every call runs the implementation at most once and every
// failure, including a panic, is reported in the result rather than returned.
func (d *Dispatcher) Invoke(ctx context.Context, name string, bag map[string]any, deadline time.Duration) *InvocationResult {
	return d.invoke(ctx, name, bag, deadline, "")
}

func (d *Dispatcher) invoke(ctx context.Context, name string, bag map[string]any, deadline time.Duration, requestID string) *InvocationResult {
	start := time.Now()
	if d.manifest != nil {
		name = d.manifest.ResolveAlias(name)
	}

	desc, err := d.registry.Resolve(name)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - %s: %v", invokeLogPrefix, name, err))
		return failure(err)
	}

	result := d.run(ctx, desc, bag, deadline)
	d.publish(ctx, desc, result, requestID, time.Since(start))
	return result
}

func (d *Dispatcher) run(ctx context.Context, desc registry.OperationDescriptor, bag map[string]any, deadline time.Duration) *InvocationResult {
	args, err := binder.Bind(desc, bag)
	if err != nil {
		return failure(err)
	}

	timeout := d.timeoutFor(desc.FullName(), deadline)
	value, err := cancellation.Run(ctx, timeout, d.cancelGrace, func(runCtx context.Context) (any, error) {
		return desc.Impl(runCtx, args)
	})
	if err != nil {
		return failure(d.classify(desc, timeout, err))
	}

	if desc.Returns == semtype.Void {
		return success(nil)
	}
	normalized, ok := semtype.Normalize(desc.Returns, value)
	if !ok {
		slog.Error(fmt.Sprintf("%s - %s returned %s, declared %s", invokeLogPrefix, desc.FullName(), semtype.ShapeOf(value), desc.Returns))
		return failure(registry.Errorf(registry.KindImplementationError, "%s returned %s, declared %s",
			desc.FullName(), semtype.ShapeOf(value), desc.Returns))
	}
	return success(normalized)
}

func (d *Dispatcher) timeoutFor(operation string, deadline time.Duration) time.Duration {
	if deadline > 0 {
		return deadline
	}
	if d.manifest != nil {
		if t, ok := d.manifest.Timeout(operation); ok {
			return t
		}
	}
	return d.defaultTimeout
}

func (d *Dispatcher) classify(desc registry.OperationDescriptor, timeout time.Duration, err error) error {
	var panicErr *cancellation.PanicError
	switch {
	case errors.Is(err, cancellation.ErrTimeout):
		return &registry.RegistryError{
			Code:    registry.KindTimeout,
			Message: fmt.Sprintf("%s did not finish within %s", desc.FullName(), timeout),
		}
	case errors.Is(err, cancellation.ErrCancelled):
		return registry.Errorf(registry.KindCancelled, "%s was cancelled by the caller", desc.FullName())
	case errors.As(err, &panicErr):
		slog.Error(fmt.Sprintf("%s - %s panicked: %v\n%s", invokeLogPrefix, desc.FullName(), panicErr.Value, panicErr.Stack))
		return registry.Errorf(registry.KindImplementationError, "%s panicked: %v", desc.FullName(), panicErr.Value)
	}
	if regErr, ok := registry.AsRegistryError(err); ok {
		if regErr.Code == registry.KindImplementationError {
			return regErr
		}
		return &registry.RegistryError{
			Code:    registry.KindImplementationError,
			Message: fmt.Sprintf("%s failed: %s", desc.FullName(), regErr.Error()),
			Details: registry.ImplementationErrorDetails{ReportedCode: regErr.Code},
		}
	}
	slog.Warn(fmt.Sprintf("%s - %s failed: %v", invokeLogPrefix, desc.FullName(), err))
	return registry.Errorf(registry.KindImplementationError, "%s failed: %v", desc.FullName(), err)
}

func (d *Dispatcher) publish(ctx context.Context, desc registry.OperationDescriptor, result *InvocationResult, requestID string, elapsed time.Duration) {
	event := &events.InvocationEvent{
		InvocationID: uuid.NewString(),
		RequestID:    requestID,
		Operation:    desc.FullName(),
		Group:        desc.Group,
		Name:         desc.Name,
		Ok:           result.Ok,
		DurationMs:   elapsed.Milliseconds(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if result.Error != nil {
		event.ErrorCode = string(result.Error.Code)
		event.ErrorMessage = result.Error.Message
	}
	if _, ok := d.publisher.(*events.NoOpPublisher); ok {
		return
	}

	// Delivery runs off the result path. The caller's context may already be
	// done; the event still goes out, bounded by publishTimeout.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.publishTimeout)
	d.publishing.Add(1)
	go func() {
		defer d.publishing.Done()
		defer cancel()
		if err := d.publisher.PublishInvoked(pubCtx, event); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to publish invocation event for %s: %v", invokeLogPrefix, event.Operation, err))
		}
	}()
}
