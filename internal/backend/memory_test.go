package backend

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/vecbench/internal/models"
)

func testCorpus() []models.Item {
	return []models.Item{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
		{ID: "c", Vector: []float32{1, 1}},
		{ID: "d", Vector: []float32{-1, 0}},
	}
}

func TestMemory_BuildAndQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	h, err := m.Build(ctx, testCorpus(), models.MetricEuclidean, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Teardown(ctx, h)) }()

	ready, err := m.Ready(ctx, h)
	require.NoError(t, err)
	assert.True(t, ready)

	got, err := m.Query(ctx, h, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-9)
	assert.Equal(t, "c", got[1].ID)
	assert.InDelta(t, 1.0, got[1].Distance, 1e-6)
}

func TestMemory_KLargerThanCorpus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	h, err := m.Build(ctx, testCorpus(), models.MetricCosine, nil)
	require.NoError(t, err)

	got, err := m.Query(ctx, h, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestMemory_ReadyAfter(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := NewMemory(nil)
	m.now = func() time.Time { return now }

	h, err := m.Build(ctx, testCorpus(), models.MetricCosine, Params{"ready_after": "2s"})
	require.NoError(t, err)

	ready, err := m.Ready(ctx, h)
	require.NoError(t, err)
	assert.False(t, ready)

	now = now.Add(2 * time.Second)
	ready, err = m.Ready(ctx, h)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestMemory_QueryDelayHonoursContext(t *testing.T) {
	m := NewMemory(nil)
	h, err := m.Build(context.Background(), testCorpus(), models.MetricCosine, Params{"query_delay": "1h"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Query(ctx, h, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_BuildRejects(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	_, err := m.Build(ctx, nil, models.MetricCosine, nil)
	assert.ErrorIs(t, err, models.ErrConfigRejected)

	_, err = m.Build(ctx, testCorpus(), models.MetricCosine, Params{"ready_after": "-1s"})
	assert.ErrorIs(t, err, models.ErrConfigRejected)

	_, err = m.Build(ctx, testCorpus(), models.MetricCosine, Params{"query_delay": 3})
	assert.ErrorIs(t, err, models.ErrConfigRejected)
}

func TestMemory_HandleChecks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.Teardown(ctx, nil))

	_, err := m.Query(ctx, nil, []float32{1, 0}, 1)
	assert.Error(t, err)

	_, err = m.Ready(ctx, &pgHandle{})
	assert.ErrorContains(t, err, "foreign handle")
}

func BenchmarkMemory_Query(b *testing.B) {
	ctx := context.Background()
	corpus := make([]models.Item, 5000)
	for i := range corpus {
		corpus[i] = models.Item{ID: fmt.Sprintf("c%05d", i), Vector: []float32{float32(i % 97), float32(i % 89), float32(i % 83), 1}}
	}
	m := NewMemory(nil)
	h, err := m.Build(ctx, corpus, models.MetricCosine, nil)
	if err != nil {
		b.Fatal(err)
	}
	q := []float32{3, 5, 7, 1}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Query(ctx, h, q, 10); err != nil {
			b.Fatal(err)
		}
	}
}
