// Package ot is a thin wrapper around opentracing-go, grounded on the
// call pattern the teacher uses at cmd/gitserver/server/common/run.go's
// ot.StartSpanFromContext (that helper package itself wasn't retrieved, only
// its call sites, so this reimplements the same two-line convenience
// directly against the global opentracing.Tracer).
package ot

import (
	"context"

	"github.com/opentracing/opentracing-go"
)

// StartSpan starts a child span from any span already in ctx (or a new root
// span if there is none), returning both the span and a ctx carrying it.
func StartSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(ctx, operationName)
}
