package models

import (
	"context"
	"time"
)

type jobContextKey struct{}

// JobContext carries delivery metadata of the job being processed so that
// downstream writers (journal mirror, notifier) can tag what they produce
// without widening every signature.
type JobContext struct {
	JobId      string
	Queue      string
	Attempt    int
	EnqueuedAt time.Time
}

// WithJobContext attaches delivery metadata to a context.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, jobContextKey{}, jc)
}

// GetJobContext retrieves delivery metadata from context, or nil if absent.
func GetJobContext(ctx context.Context) *JobContext {
	jc, _ := ctx.Value(jobContextKey{}).(*JobContext)
	return jc
}
