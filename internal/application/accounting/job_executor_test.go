package accounting

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestJobExecutor_Execute(t *testing.T) {
	t.Run("single job success", func(t *testing.T) {
		f := connectedFixture(t)
		product := testProduct("Widget")
		f.products.On("FindByID", mock.Anything, product.ID).Return(product, nil)
		f.gateway.On("CreateItem", mock.Anything, mock.AnythingOfType("*accounting.RemoteItem")).
			Return(&accounting.RemoteItem{ID: "item-7"}, nil).Once()

		res, err := NewJobExecutor(f.service).Execute(context.Background(), scheduler.SyncJobRequest{
			Kind:    accounting.EntityKindProduct,
			LocalID: &product.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, scheduler.SyncJobResult{Total: 1, Synced: 1, RemoteID: "item-7"}, res)
	})

	t.Run("remote failure is retryable", func(t *testing.T) {
		f := connectedFixture(t)
		product := testProduct("Widget")
		f.products.On("FindByID", mock.Anything, product.ID).Return(product, nil)
		f.gateway.On("CreateItem", mock.Anything, mock.AnythingOfType("*accounting.RemoteItem")).
			Return(nil, errors.New("503 Service Unavailable")).Once()

		res, err := NewJobExecutor(f.service).Execute(context.Background(), scheduler.SyncJobRequest{
			Kind:    accounting.EntityKindProduct,
			LocalID: &product.ID,
		})
		require.Error(t, err)
		assert.False(t, scheduler.IsPermanent(err))
		assert.Contains(t, err.Error(), "503")
		assert.Equal(t, 1, res.Errors)
	})

	t.Run("lost connection is permanent", func(t *testing.T) {
		f := newSyncFixture(t, staticTokens{err: accounting.ErrNotConnected}, SyncConfig{})
		id := uuid.New()
		exec := NewJobExecutor(f.service)

		_, err := exec.Execute(context.Background(), scheduler.SyncJobRequest{Kind: accounting.EntityKindCustomer, LocalID: &id})
		require.Error(t, err)
		assert.True(t, scheduler.IsPermanent(err))
		assert.ErrorIs(t, err, accounting.ErrNotConnected)

		_, err = exec.Execute(context.Background(), scheduler.SyncJobRequest{Kind: accounting.EntityKindCustomer})
		require.Error(t, err)
		assert.True(t, scheduler.IsPermanent(err))
		assert.Empty(t, f.logs.all())
	})
}
