// Package natsutil provides typed NATS publish/subscribe/request helpers
// with OpenTelemetry trace propagation, and JetStream key-value buckets.
package natsutil

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// RetryHeader counts redeliveries of a job message.
const RetryHeader = "X-Retry-Count"

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

// Msg is a decoded message together with its envelope.
type Msg[T any] struct {
	Subject string
	Value   T
	Header  nats.Header
	raw     *nats.Msg
}

// Retries returns the X-Retry-Count header, zero when absent or malformed.
func (m Msg[T]) Retries() int {
	n, _ := strconv.Atoi(m.Header.Get(RetryHeader))
	return n
}

// Respond replies with v as JSON when the sender used Request. It is a no-op
// for plain published messages.
func (m Msg[T]) Respond(v any) error {
	if m.raw == nil || m.raw.Reply == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.raw.Respond(data)
}

// Publish serializes v as JSON and publishes to the given subject with
// optional extra headers. Trace context from ctx is injected into NATS
// message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T, header nats.Header) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	for k, vals := range header {
		for _, val := range vals {
			msg.Header = addHeader(msg.Header, k, val)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return nc.PublishMsg(msg)
}

func addHeader(h nats.Header, key, val string) nats.Header {
	if h == nil {
		h = make(nats.Header)
	}
	h.Add(key, val)
	return h
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// A non-empty queue makes the subscription part of a queue group so each
// message is handled by one worker. Trace context is extracted from NATS
// message headers and passed to the handler. Malformed messages are dropped.
func Subscribe[T any](nc *nats.Conn, subject, queue string, handler func(context.Context, Msg[T])) (*nats.Subscription, error) {
	cb := func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return // drop malformed messages
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, Msg[T]{Subject: msg.Subject, Value: v, Header: msg.Header, raw: msg})
	}
	if queue != "" {
		return nc.QueueSubscribe(subject, queue, cb)
	}
	return nc.Subscribe(subject, cb)
}

// Request sends a JSON-encoded request and decodes the response. The wait is
// bounded by ctx's deadline, or nats.DefaultTimeout when ctx has none.
func Request[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	data, err := json.Marshal(req)
	if err != nil {
		return zero, err
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}
	resp, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return zero, err
	}
	var result Resp
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return zero, err
	}
	return result, nil
}
