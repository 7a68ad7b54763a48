package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type traceDataKey struct{}
type requesterKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// Requester is the authenticated caller, as asserted by the bearer token.
type Requester struct {
	OwnerID       uuid.UUID
	InstitutionID *uuid.UUID
}

func WithRequester(ctx context.Context, r *Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, r)
}

func GetRequester(ctx context.Context) *Requester {
	if r, ok := ctx.Value(requesterKey{}).(*Requester); ok {
		return r
	}
	return nil
}

func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
