package ports_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Publish(ctx context.Context, treeID string, patches []domain.Patch) error {
	args := m.Called(ctx, treeID, patches)
	return args.Error(0)
}

func TestBroadcasters_Publish(t *testing.T) {
	ctx := context.Background()
	patches := []domain.Patch{domain.ReplacePatch("A", "d1", "text", "a", "b")}

	t.Run("every broadcaster receives the batch", func(t *testing.T) {
		first, second := new(MockBroadcaster), new(MockBroadcaster)
		first.On("Publish", mock.Anything, "A", patches).Return(nil).Once()
		second.On("Publish", mock.Anything, "A", patches).Return(nil).Once()

		assert.NoError(t, ports.Broadcasters{first, second}.Publish(ctx, "A", patches))
		first.AssertExpectations(t)
		second.AssertExpectations(t)
	})

	t.Run("a failure does not stop the fan-out", func(t *testing.T) {
		boom := errors.New("broker down")
		failing, healthy := new(MockBroadcaster), new(MockBroadcaster)
		failing.On("Publish", mock.Anything, "A", patches).Return(boom)
		healthy.On("Publish", mock.Anything, "A", patches).Return(nil)

		err := ports.Broadcasters{failing, healthy}.Publish(ctx, "A", patches)
		assert.ErrorIs(t, err, boom)
		healthy.AssertCalled(t, "Publish", mock.Anything, "A", patches)
	})

	t.Run("empty fan-out is a no-op", func(t *testing.T) {
		assert.NoError(t, ports.Broadcasters(nil).Publish(ctx, "A", patches))
	})
}
