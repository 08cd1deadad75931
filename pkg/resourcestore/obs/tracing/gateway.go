package tracing

import (
	"context"
	"errors"
	"time"

	"github.com/tendant/simple-resource/pkg/resourcestore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "resourcestore/gateway"

type traced struct {
	next    resourcestore.Gateway
	backend string
	tracer  trace.Tracer
}

// Trace decorates gw so each call runs in a client span named "gateway.<op>".
// A missing key is recorded as an attribute, not as a span error.
func Trace(gw resourcestore.Gateway, backend string, tp trace.TracerProvider) resourcestore.Gateway {
	return &traced{next: gw, backend: backend, tracer: tp.Tracer(tracerName)}
}

func (g *traced) start(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "gateway."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("storage.backend", g.backend),
			attribute.String("storage.key", key),
		),
	)
}

func finish(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	if errors.Is(err, resourcestore.ErrNotFound) {
		span.SetAttributes(attribute.Bool("storage.not_found", true))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (g *traced) ListPage(ctx context.Context, prefix, token string) (resourcestore.Page, error) {
	ctx, span := g.start(ctx, "list", prefix)
	page, err := g.next.ListPage(ctx, prefix, token)
	span.SetAttributes(
		attribute.Int("storage.page.size", len(page.Summaries)),
		attribute.Bool("storage.page.truncated", page.NextToken != ""),
	)
	finish(span, err)
	return page, err
}

func (g *traced) Get(ctx context.Context, key string) (*resourcestore.Object, error) {
	ctx, span := g.start(ctx, "get", key)
	obj, err := g.next.Get(ctx, key)
	finish(span, err)
	return obj, err
}

func (g *traced) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := g.start(ctx, "put", key)
	span.SetAttributes(attribute.Int("storage.bytes", len(data)))
	err := g.next.Put(ctx, key, data, contentType)
	finish(span, err)
	return err
}

func (g *traced) Delete(ctx context.Context, key string) error {
	ctx, span := g.start(ctx, "delete", key)
	err := g.next.Delete(ctx, key)
	finish(span, err)
	return err
}

func (g *traced) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := g.start(ctx, "exists", key)
	ok, err := g.next.Exists(ctx, key)
	span.SetAttributes(attribute.Bool("storage.exists", ok))
	finish(span, err)
	return ok, err
}

func (g *traced) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ctx, span := g.start(ctx, "presign", key)
	span.SetAttributes(attribute.String("storage.ttl", resourcestore.ClampTTL(ttl).String()))
	link, err := g.next.Presign(ctx, key, ttl)
	finish(span, err)
	return link, err
}
