package ports

import (
	"context"

	"github.com/aretw0/thicket/pkg/domain"
)

// ResultStatus is the authority verdict for one submitted patch.
type ResultStatus string

const (
	Accepted             ResultStatus = "accepted"
	RejectedValueChanged ResultStatus = "rejected_value_changed"
)

// Result is the verdict for the patch at the same index of a submission.
type Result struct {
	Status ResultStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// Accepted reports whether the patch was applied.
func (r Result) Accepted() bool { return r.Status == Accepted }

// Authority is the remote service owning the authoritative graph.
//
// Submit applies patches in order and returns exactly one result per patch.
// Inverses are the exact counterparts of patches, index aligned. An error
// means the submission state is unknown.
type Authority interface {
	Submit(ctx context.Context, treeID string, patches, inverses []domain.Patch, isRedo bool) ([]Result, error)
}
