package observability

import (
	"context"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

type instrumentedAuthority struct {
	next ports.Authority
	m    *Metrics
}

// InstrumentAuthority counts the verdicts auth returns.
func InstrumentAuthority(auth ports.Authority, m *Metrics) ports.Authority {
	return &instrumentedAuthority{next: auth, m: m}
}

func (a *instrumentedAuthority) Submit(ctx context.Context, treeID string, patches, inverses []domain.Patch, isRedo bool) ([]ports.Result, error) {
	results, err := a.next.Submit(ctx, treeID, patches, inverses, isRedo)
	if err != nil {
		a.m.Patches.WithLabelValues("unknown").Add(float64(len(patches)))
		return nil, err
	}
	for _, r := range results {
		a.m.Patches.WithLabelValues(string(r.Status)).Inc()
	}
	return results, nil
}
