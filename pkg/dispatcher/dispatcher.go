package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/plugin-registry/pkg/bootstrap"
	"github.com/morezero/plugin-registry/pkg/events"
	"github.com/morezero/plugin-registry/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// Options configures a Dispatcher. Zero values leave the feature off.
type Options struct {
	// DefaultTimeout applies when neither the caller nor the manifest sets one.
	DefaultTimeout time.Duration
	// CancelGrace is how long a cancelled operation may take to stop before it is abandoned.
	CancelGrace time.Duration
	Manifest    *bootstrap.ResolvedManifest
	Publisher   events.EventPublisher
	// PublishTimeout bounds each event delivery. Zero means DefaultPublishTimeout.
	PublishTimeout time.Duration
}

// DefaultPublishTimeout bounds event delivery when Options.PublishTimeout is unset.
const DefaultPublishTimeout = 5 * time.Second

// Dispatcher invokes operations from a frozen Registry. Apart from tracking
// in-flight event deliveries it holds no mutable state and is safe for
// concurrent use.
type Dispatcher struct {
	registry       *registry.Registry
	manifest       *bootstrap.ResolvedManifest
	publisher      events.EventPublisher
	publishTimeout time.Duration
	defaultTimeout time.Duration
	cancelGrace    time.Duration

	publishing sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher. Pass nil opts for no timeouts, no aliases and no events.
func NewDispatcher(reg *registry.Registry, opts *Options) *Dispatcher {
	d := &Dispatcher{registry: reg, publisher: &events.NoOpPublisher{}, publishTimeout: DefaultPublishTimeout}
	if opts != nil {
		d.manifest = opts.Manifest
		d.defaultTimeout = opts.DefaultTimeout
		d.cancelGrace = opts.CancelGrace
		if opts.Publisher != nil {
			d.publisher = opts.Publisher
		}
		if opts.PublishTimeout > 0 {
			d.publishTimeout = opts.PublishTimeout
		}
	}
	return d
}

// Flush waits until every invocation event handed out so far has been delivered
// or given up on, or until ctx ends.
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.publishing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - flush events: %w", logPrefix, ctx.Err())
	}
}

// Registry returns the registry the dispatcher serves.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Dispatch routes a request to the appropriate method and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case "invoke":
		return d.handleInvoke(ctx, req)
	case "list":
		return d.handleList(req)
	case "describe":
		return d.handleDescribe(req)
	case "discover":
		return d.handleDiscover(req)
	case "health":
		return d.handleHealth(ctx, req)
	default:
		return errorResponse(req.ID, registry.Errorf(registry.KindMethodNotFound, "Unknown method: %s", req.Method))
	}
}

func (d *Dispatcher) handleInvoke(ctx context.Context, req *Request) *Response {
	if req.Operation == "" {
		return errorResponse(req.ID, registry.NewRegistryError(registry.KindInvalidArgument, "invoke requires an operation"))
	}
	requestID := req.ID
	if req.Ctx != nil && req.Ctx.RequestID != "" {
		requestID = req.Ctx.RequestID
	}

	result := d.invoke(ctx, req.Operation, req.Args, req.Ctx.Timeout(), requestID)
	if !result.Ok {
		return errorResponse(req.ID, result.Error)
	}
	return &Response{ID: req.ID, Ok: true, Result: result.Value}
}

func (d *Dispatcher) handleList(req *Request) *Response {
	out := &ListOutput{Groups: d.registry.Groups()}
	if d.manifest != nil {
		out.Aliases = d.manifest.Aliases()
	}
	return &Response{ID: req.ID, Ok: true, Result: out}
}

func (d *Dispatcher) handleDescribe(req *Request) *Response {
	name := req.Operation
	if name == "" && len(req.Params) > 0 {
		var input struct {
			Operation string `json:"operation"`
		}
		if err := json.Unmarshal(req.Params, &input); err != nil {
			return errorResponse(req.ID, registry.NewRegistryError(registry.KindInvalidArgument, "Failed to parse describe params"))
		}
		name = input.Operation
	}
	if name == "" {
		return errorResponse(req.ID, registry.NewRegistryError(registry.KindInvalidArgument, "describe requires an operation"))
	}
	if d.manifest != nil {
		name = d.manifest.ResolveAlias(name)
	}

	result, err := d.registry.Describe(name)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return &Response{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleDiscover(req *Request) *Response {
	var input registry.DiscoverInput
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &input); err != nil {
			return errorResponse(req.ID, registry.NewRegistryError(registry.KindInvalidArgument, "Failed to parse discover params"))
		}
	}
	return &Response{ID: req.ID, Ok: true, Result: d.registry.Discover(&input)}
}

func (d *Dispatcher) handleHealth(ctx context.Context, req *Request) *Response {
	return &Response{ID: req.ID, Ok: true, Result: d.registry.Health(ctx)}
}

// --- helpers ---

// ToErrorDetail converts any error into the wire error shape.
func ToErrorDetail(err error) *ErrorDetail {
	regErr, ok := registry.AsRegistryError(err)
	if !ok {
		regErr = &registry.RegistryError{Code: registry.KindImplementationError, Message: err.Error()}
	}
	return &ErrorDetail{
		Code:      string(regErr.Code),
		Message:   regErr.Message,
		Details:   regErr.Details,
		Retryable: regErr.Code.Retryable(),
	}
}

func errorResponse(id string, err error) *Response {
	return &Response{ID: id, Ok: false, Error: ToErrorDetail(err)}
}
