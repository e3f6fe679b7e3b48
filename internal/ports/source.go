package ports

import (
	"context"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
)

// Source opens sessions against the historian.
type Source interface {
	Open(ctx context.Context) (Session, error)
	Name() string
}

// Session owns one historian connection. It is not safe for concurrent use.
type Session interface {
	BrowseTags(ctx context.Context, root string, deep bool) ([]domain.Tag, error)
	LiveSnapshot(ctx context.Context, tags []domain.Tag, includeQuality bool) (domain.Snapshot, error)
	Close() error
}
