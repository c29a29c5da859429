package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/vecbench/internal/models"
)

func TestNew(t *testing.T) {
	for _, typ := range Types() {
		b, err := New(typ, Connection{}, nil)
		require.NoError(t, err, typ)
		assert.Equal(t, typ, b.Name())
		assert.NotEmpty(t, b.Capabilities().Metrics)
	}

	b, err := New("Postgres", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, TypePgvector, b.Name())

	_, err = New("milvus", nil, nil)
	assert.ErrorIs(t, err, models.ErrConfigRejected)
}

func TestCapabilities_RemoteFlags(t *testing.T) {
	assert.False(t, NewMemory(nil).Capabilities().Remote)
	assert.True(t, NewQdrant(nil, nil).Capabilities().EventuallyConsistent)
	assert.True(t, NewWeaviate(nil, nil).Capabilities().EventuallyConsistent)
	assert.False(t, NewPgvector(nil, nil).Capabilities().EventuallyConsistent)
}
