package ports

import (
	"context"
	"errors"

	"github.com/aretw0/thicket/pkg/domain"
)

// Broadcaster publishes accepted patches to other editors of the same tree.
type Broadcaster interface {
	Publish(ctx context.Context, treeID string, patches []domain.Patch) error
}

// Broadcasters fans one publication out to several broadcasters. Every
// broadcaster is attempted; failures are joined.
type Broadcasters []Broadcaster

func (bs Broadcasters) Publish(ctx context.Context, treeID string, patches []domain.Patch) error {
	var errs []error
	for _, b := range bs {
		if err := b.Publish(ctx, treeID, patches); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrorReporter receives structural faults that must not be swallowed.
type ErrorReporter interface {
	Report(ctx context.Context, err error)
}
