package dispatcher

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/plugin-registry/pkg/bootstrap"
	"github.com/morezero/plugin-registry/pkg/commsutil"
	"github.com/morezero/plugin-registry/pkg/registry"
)

const dispatchTestPrefix = "dispatcher:dispatcher_test"

func decodeRequest(t *testing.T, raw string) *Request {
	t.Helper()
	var req Request
	if err := commsutil.DecodePayload([]byte(raw), &req); err != nil {
		t.Fatalf("%s - decode request: %v", dispatchTestPrefix, err)
	}
	return &req
}

func TestDispatch_Invoke(t *testing.T) {
	d := newTestDispatcher(t, nil)
	req := decodeRequest(t, `{
		"id": "req-1",
		"method": "invoke",
		"operation": "collections.take",
		"args": {"collection": ["a", "b", "c"], "count": 2},
		"ctx": {"requestId": "outer-7", "timeoutMs": 1000}
	}`)

	resp := d.Dispatch(context.Background(), req)
	if !resp.Ok || resp.ID != "req-1" {
		t.Fatalf("%s - response = %+v", dispatchTestPrefix, resp)
	}
	if !reflect.DeepEqual(resp.Result, []string{"a", "b"}) {
		t.Errorf("%s - Result = %#v", dispatchTestPrefix, resp.Result)
	}
}

func TestDispatch_InvokeErrors(t *testing.T) {
	d := newTestDispatcher(t, nil)

	tests := []struct {
		name      string
		req       *Request
		code      string
		retryable bool
	}{
		{"no operation", &Request{ID: "1", Method: "invoke"}, "INVALID_ARGUMENT", false},
		{"unknown operation", &Request{ID: "2", Method: "invoke", Operation: "nonexistent.op"}, "OPERATION_NOT_FOUND", false},
		{"missing argument", &Request{ID: "3", Method: "invoke", Operation: "collections.first"}, "MISSING_ARGUMENT", false},
		{"timeout", &Request{
			ID: "4", Method: "invoke", Operation: "testing.sleep",
			Args: map[string]interface{}{"ms": 5000},
			Ctx:  &InvocationContext{DeadlineMs: 10},
		}, "TIMEOUT", true},
		{"unknown method", &Request{ID: "5", Method: "resolve"}, "METHOD_NOT_FOUND", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(context.Background(), tt.req)
			if resp.Ok || resp.Error == nil {
				t.Fatalf("%s - expected error response, got %+v", dispatchTestPrefix, resp)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("%s - Code = %s, want %s", dispatchTestPrefix, resp.Error.Code, tt.code)
			}
			if resp.Error.Retryable != tt.retryable {
				t.Errorf("%s - Retryable = %v, want %v", dispatchTestPrefix, resp.Error.Retryable, tt.retryable)
			}
			if resp.ID != tt.req.ID {
				t.Errorf("%s - ID = %s, want %s", dispatchTestPrefix, resp.ID, tt.req.ID)
			}
		})
	}
}

func TestDispatch_MissingIDGetsUUID(t *testing.T) {
	d := newTestDispatcher(t, nil)
	resp := d.Dispatch(context.Background(), &Request{Method: "health"})
	if _, err := uuid.Parse(resp.ID); err != nil {
		t.Errorf("%s - ID %q is not a UUID: %v", dispatchTestPrefix, resp.ID, err)
	}
}

func TestDispatch_TypeMismatchDetails(t *testing.T) {
	d := newTestDispatcher(t, nil)
	resp := d.Dispatch(context.Background(), &Request{
		ID: "tm", Method: "invoke", Operation: "collections.take",
		Args: map[string]interface{}{"collection": []interface{}{"a"}, "count": "2"},
	})
	details, ok := resp.Error.Details.(registry.TypeMismatchDetails)
	if !ok {
		t.Fatalf("%s - Details = %#v", dispatchTestPrefix, resp.Error.Details)
	}
	if details.Parameter != "count" || details.Expected != "integer" || details.Actual != "string" {
		t.Errorf("%s - Details = %+v", dispatchTestPrefix, details)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("%s - marshal: %v", dispatchTestPrefix, err)
	}
	var wire map[string]interface{}
	_ = json.Unmarshal(data, &wire)
	errObj := wire["error"].(map[string]interface{})
	if errObj["details"].(map[string]interface{})["parameter"] != "count" {
		t.Errorf("%s - wire error = %v", dispatchTestPrefix, errObj)
	}
}

func TestDispatch_ListDescribeDiscoverHealth(t *testing.T) {
	manifest, _ := bootstrap.CreateResolvedManifest(&bootstrap.PluginManifest{
		Aliases: map[string]string{"rev": "collections.reverse"},
	})
	d := newTestDispatcher(t, &Options{Manifest: manifest})
	ctx := context.Background()

	resp := d.Dispatch(ctx, &Request{ID: "l", Method: "list"})
	list, ok := resp.Result.(*ListOutput)
	if !resp.Ok || !ok {
		t.Fatalf("%s - list = %+v", dispatchTestPrefix, resp)
	}
	if groups := list.Groups.([]registry.GroupInfo); len(groups) != 2 || groups[0].Name != "collections" {
		t.Errorf("%s - list groups = %+v", dispatchTestPrefix, list.Groups)
	}
	if list.Aliases["rev"] != "collections.reverse" {
		t.Errorf("%s - list aliases = %v", dispatchTestPrefix, list.Aliases)
	}

	resp = d.Dispatch(ctx, &Request{ID: "d1", Method: "describe", Operation: "rev"})
	if desc, ok := resp.Result.(*registry.DescribeOutput); !resp.Ok || !ok || desc.Operation != "collections.reverse" {
		t.Errorf("%s - describe via alias = %+v", dispatchTestPrefix, resp)
	}
	resp = d.Dispatch(ctx, &Request{ID: "d2", Method: "describe", Params: json.RawMessage(`{"operation":"collections.count"}`)})
	if desc, ok := resp.Result.(*registry.DescribeOutput); !resp.Ok || !ok || desc.Returns != "integer" {
		t.Errorf("%s - describe via params = %+v", dispatchTestPrefix, resp)
	}
	resp = d.Dispatch(ctx, &Request{ID: "d3", Method: "describe"})
	if resp.Ok || resp.Error.Code != "INVALID_ARGUMENT" {
		t.Errorf("%s - describe without operation = %+v", dispatchTestPrefix, resp)
	}

	resp = d.Dispatch(ctx, &Request{ID: "x", Method: "discover", Params: json.RawMessage(`{"group":"testing","limit":2}`)})
	out, ok := resp.Result.(*registry.DiscoverOutput)
	if !resp.Ok || !ok || len(out.Operations) != 2 || out.Pagination.Total != 7 {
		t.Errorf("%s - discover = %+v", dispatchTestPrefix, resp.Result)
	}
	resp = d.Dispatch(ctx, &Request{ID: "y", Method: "discover", Params: json.RawMessage(`{bad`)})
	if resp.Ok || resp.Error.Code != "INVALID_ARGUMENT" {
		t.Errorf("%s - bad discover params = %+v", dispatchTestPrefix, resp)
	}

	resp = d.Dispatch(ctx, &Request{ID: "h", Method: "health"})
	if h, ok := resp.Result.(*registry.HealthOutput); !resp.Ok || !ok || h.Status != "healthy" {
		t.Errorf("%s - health = %+v", dispatchTestPrefix, resp.Result)
	}
}

func TestInvocationContext_Timeout(t *testing.T) {
	tests := []struct {
		ctx  *InvocationContext
		want time.Duration
	}{
		{nil, 0},
		{&InvocationContext{}, 0},
		{&InvocationContext{TimeoutMs: 300}, 300 * time.Millisecond},
		{&InvocationContext{DeadlineMs: 50, TimeoutMs: 300}, 50 * time.Millisecond},
		{&InvocationContext{DeadlineMs: -5, TimeoutMs: 10}, 10 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := tt.ctx.Timeout(); got != tt.want {
			t.Errorf("%s - %+v.Timeout() = %v, want %v", dispatchTestPrefix, tt.ctx, got, tt.want)
		}
	}
}

func TestToErrorDetail_ForeignError(t *testing.T) {
	detail := ToErrorDetail(context.DeadlineExceeded)
	if detail.Code != "IMPLEMENTATION_ERROR" || detail.Retryable {
		t.Errorf("%s - detail = %+v", dispatchTestPrefix, detail)
	}
}
