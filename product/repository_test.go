package product

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/ignite"
)

func TestNewRepository_RegistersScanPool(t *testing.T) {
	repo, err := NewRepository(nil, zap.NewNop(), ignite.NewManager())
	require.NoError(t, err)

	scratch, release, err := repo.(*repository).getFromPool(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, scratch)
	release()
}
