package transfer

import (
	"context"
	"io"

	"github.com/tgvault/tgvault/internal/transport"
)

// PartTransport is the remote side the engine uploads parts to and fetches
// parts from. Concrete behavior (rate limits, URL shape) belongs to the
// implementation, not to the engine.
type PartTransport interface {
	// PutPart stores one part's bytes remotely and returns its locator.
	PutPart(ctx context.Context, name string, r io.Reader, size int64) (transport.PartRef, error)
	// ResolvePart resolves a part locator to a direct fetch URL.
	ResolvePart(ctx context.Context, fileID string) (string, error)
	// FetchPart streams the bytes behind a fetch URL into w.
	FetchPart(ctx context.Context, fetchURL string, w io.Writer) error
}
