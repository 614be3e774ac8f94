package domain

import "context"

// StreamResolver turns a track id into a fetchable media URL. Implementations
// talk to a catalog backend; the call may be slow and may fail, and callers
// must never assume synchronous success.
type StreamResolver interface {
	ResolveStreamURL(ctx context.Context, trackID string) (string, error)
}
