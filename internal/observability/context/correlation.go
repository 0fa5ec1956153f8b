package context

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	cid := CorrelationIDFromContext(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return WithCorrelationID(ctx, cid), cid
}
