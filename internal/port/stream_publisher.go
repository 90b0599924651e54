package port

import (
	"context"

	"github.com/venuekit/tapledger/internal/core/domain"
)

type StreamPublisher interface {
	// PublishTap republishes a normalized tap to live displays. Best-effort;
	// delivery failures must not block tap processing.
	PublishTap(ctx context.Context, ev domain.TapEvent) error
}
