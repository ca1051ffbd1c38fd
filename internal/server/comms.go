package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"

	"github.com/morezero/plugin-registry/pkg/commsutil"
	"github.com/morezero/plugin-registry/pkg/dispatcher"
	"github.com/morezero/plugin-registry/pkg/registry"
)

const commsLogPrefix = "server:comms"

// requestHandler answers dispatcher requests arriving on a COMMS subject. Each
// message is handled on its own goroutine so a slow operation never blocks the
// subscription. At most maxInFlight messages run at once; beyond that the
// subscription callback waits for a slot.
type requestHandler struct {
	ctx            context.Context
	disp           *dispatcher.Dispatcher
	requestTimeout time.Duration
	slots          *semaphore.Weighted
	wg             sync.WaitGroup
}

func newRequestHandler(ctx context.Context, disp *dispatcher.Dispatcher, requestTimeout time.Duration, maxInFlight int) *requestHandler {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &requestHandler{
		ctx:            ctx,
		disp:           disp,
		requestTimeout: requestTimeout,
		slots:          semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// subscribe attaches the handler to subject on nc.
func (h *requestHandler) subscribe(nc *comms.Conn, subject string) (*comms.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		if err := h.slots.Acquire(h.ctx, 1); err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping request on %s: %v", commsLogPrefix, msg.Subject, err))
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			defer h.slots.Release(1)
			h.handle(msg)
		}()
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", commsLogPrefix, subject))
	return sub, nil
}

// wait blocks until every in-flight request has been answered.
func (h *requestHandler) wait() {
	h.wg.Wait()
}

func (h *requestHandler) handle(msg *comms.Msg) {
	var req dispatcher.Request
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", commsLogPrefix, err))
		resp := &dispatcher.Response{
			Ok:    false,
			Error: dispatcher.ToErrorDetail(registry.NewRegistryError(registry.KindInvalidArgument, "Failed to decode request")),
		}
		if err := commsutil.Respond(msg, resp); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond: %v", commsLogPrefix, err))
		}
		return
	}

	ctx, cancel := h.requestContext(req.Ctx)
	defer cancel()

	resp := h.disp.Dispatch(ctx, &req)
	if err := commsutil.Respond(msg, resp); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond to %s: %v", commsLogPrefix, req.ID, err))
	}
}

// requestContext bounds one request by the server's request timeout, shortened
// by the caller's own deadline when that is tighter.
func (h *requestHandler) requestContext(ic *dispatcher.InvocationContext) (context.Context, context.CancelFunc) {
	timeout := h.requestTimeout
	if client := ic.Timeout(); client > 0 && (timeout <= 0 || client < timeout) {
		timeout = client
	}
	if timeout <= 0 {
		return context.WithCancel(h.ctx)
	}
	return context.WithTimeout(h.ctx, timeout)
}
