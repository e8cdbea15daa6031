package orchestrator

import (
	"context"

	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/ids"
)

type metadataKey struct{}

// WithCorrelation makes operations run with ctx use corr as their
// correlation id.
func WithCorrelation(ctx context.Context, corr ids.CorrelationID) context.Context {
	return WithMetadata(ctx, event.MetadataFor(corr))
}

// WithMetadata sets the full causal metadata for operations run with ctx.
func WithMetadata(ctx context.Context, meta event.Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, meta)
}

// MetadataFrom returns the metadata carried by ctx, or fresh metadata.
func MetadataFrom(ctx context.Context) event.Metadata {
	if meta, ok := ctx.Value(metadataKey{}).(event.Metadata); ok && !meta.CorrelationID.IsZero() {
		return meta
	}
	return event.NewMetadata()
}
