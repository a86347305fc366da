package sweeper

import (
	"context"
)

// Sweeper is a periodic background job running next to the ingestor
type Sweeper interface {
	// Start runs cycles until ctx is canceled or Stop is called
	Start(ctx context.Context) error

	// Stop ends the loop, waiting for a running cycle to finish or ctx to expire
	Stop(ctx context.Context) error

	// Name identifies the sweeper in logs
	Name() string
}
