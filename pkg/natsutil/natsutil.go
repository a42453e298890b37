// Package natsutil provides typed NATS publish/subscribe/request helpers
// with OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NewMsg builds a JSON message for subject carrying the trace context of ctx.
// hdr may be nil.
func NewMsg[T any](ctx context.Context, subject string, v T, hdr nats.Header) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: marshal: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, vals := range hdr {
		for _, val := range vals {
			msg.Header.Add(k, val)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	msg, err := NewMsg(ctx, subject, v, nil)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Context returns a context carrying the trace context found in msg headers.
func Context(msg *nats.Msg) context.Context {
	return otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Trace context is extracted from NATS message headers and passed to the handler.
// Malformed messages are silently dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return SubscribeMsg(nc, subject, func(ctx context.Context, _ *nats.Msg, v T) {
		handler(ctx, v)
	}, nil)
}

// SubscribeMsg is Subscribe with access to the raw message, for handlers that
// read headers or reply. onBadMsg, if set, receives decode failures.
func SubscribeMsg[T any](nc *nats.Conn, subject string, handler func(context.Context, *nats.Msg, T), onBadMsg func(*nats.Msg, error)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			if onBadMsg != nil {
				onBadMsg(msg, err)
			}
			return
		}
		handler(Context(msg), msg, v)
	})
}

// Request sends a JSON-encoded request and decodes the response.
// The deadline of ctx applies; without one nats.DefaultTimeout is used.
func Request[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	msg, err := NewMsg(ctx, subject, req, nil)
	if err != nil {
		return zero, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}
	resp, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return zero, fmt.Errorf("natsutil: request %s: %w", subject, err)
	}
	var result Resp
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return zero, fmt.Errorf("natsutil: decode reply: %w", err)
	}
	return result, nil
}

// Reply is the envelope Serve answers with.
type Reply[T any] struct {
	Result *T     `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ErrRemote is wrapped around errors reported by a Serve handler.
var ErrRemote = errors.New("remote handler failed")

// Serve answers requests on subject with handler. Every request gets a Reply:
// malformed requests and handler errors are reported in Reply.Error.
func Serve[Req, Resp any](nc *nats.Conn, subject string, handler func(context.Context, Req) (Resp, error)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var out Reply[Resp]
		var req Req
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			out.Error = "malformed request: " + err.Error()
		} else if resp, err := handler(Context(msg), req); err != nil {
			out.Error = err.Error()
		} else {
			out.Result = &resp
		}
		data, _ := json.Marshal(out)
		_ = msg.Respond(data)
	})
}

// Call sends req to a Serve responder and unwraps its Reply.
func Call[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	reply, err := Request[Req, Reply[Resp]](ctx, nc, subject, req)
	if err != nil {
		return zero, err
	}
	if reply.Error != "" {
		return zero, fmt.Errorf("natsutil: %s: %w: %s", subject, ErrRemote, reply.Error)
	}
	if reply.Result == nil {
		return zero, nil
	}
	return *reply.Result, nil
}
