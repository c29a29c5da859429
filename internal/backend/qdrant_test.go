package backend

import (
	"context"
	"errors"
	"testing"

	qpb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hyperjump/vecbench/internal/models"
)

func TestQdrantDistance(t *testing.T) {
	d, err := qdrantDistance(models.MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, qpb.Distance_Cosine, d)

	d, err = qdrantDistance(models.MetricEuclidean)
	require.NoError(t, err)
	assert.Equal(t, qpb.Distance_Euclid, d)

	d, err = qdrantDistance(models.MetricDot)
	require.NoError(t, err)
	assert.Equal(t, qpb.Distance_Dot, d)

	_, err = qdrantDistance("hamming")
	assert.ErrorIs(t, err, models.ErrConfigRejected)
}

func TestQdrantScoreToDistance(t *testing.T) {
	assert.InDelta(t, 0.25, qdrantScoreToDistance(models.MetricCosine, 0.75), 1e-6)
	assert.InDelta(t, -3.0, qdrantScoreToDistance(models.MetricDot, 3), 1e-6)
	assert.InDelta(t, 1.5, qdrantScoreToDistance(models.MetricEuclidean, 1.5), 1e-6)
}

func TestQdrantPointsAndNeighbors(t *testing.T) {
	corpus := testCorpus()
	points := qdrantPoints(corpus[2:], 2)
	require.Len(t, points, 2)
	assert.Equal(t, uint64(2), points[0].GetId().GetNum())
	assert.Equal(t, uint64(3), points[1].GetId().GetNum())
	assert.Equal(t, []float32{1, 1}, points[0].GetVectors().GetVector().GetData())

	ids := []string{"a", "b", "c", "d"}
	hits := []*qpb.ScoredPoint{
		{Id: &qpb.PointId{PointIdOptions: &qpb.PointId_Num{Num: 2}}, Score: 0.9},
		{Id: &qpb.PointId{PointIdOptions: &qpb.PointId_Num{Num: 0}}, Score: 0.5},
	}
	got, err := qdrantNeighbors(models.MetricCosine, ids, hits)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, models.NeighborIDs(got))
	assert.InDelta(t, 0.1, got[0].Distance, 1e-6)

	hits = append(hits, &qpb.ScoredPoint{Id: &qpb.PointId{PointIdOptions: &qpb.PointId_Num{Num: 9}}})
	_, err = qdrantNeighbors(models.MetricCosine, ids, hits)
	assert.Error(t, err)
}

func TestQdrantReady(t *testing.T) {
	count := uint64(4)
	assert.False(t, qdrantReady(nil, 4))
	assert.True(t, qdrantReady(&qpb.CollectionInfo{Status: qpb.CollectionStatus_Green, PointsCount: &count}, 4))
	assert.False(t, qdrantReady(&qpb.CollectionInfo{Status: qpb.CollectionStatus_Yellow, PointsCount: &count}, 4))
	assert.False(t, qdrantReady(&qpb.CollectionInfo{Status: qpb.CollectionStatus_Green, PointsCount: &count}, 5))
}

func TestClassifyGRPC(t *testing.T) {
	err := classifyGRPC("create", status.Error(codes.InvalidArgument, "bad m"))
	assert.ErrorIs(t, err, models.ErrConfigRejected)

	err = classifyGRPC("search", status.Error(codes.Unavailable, "down"))
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)

	base := errors.New("boom")
	err = classifyGRPC("search", base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "Error", models.ErrorKind(err))
}

func TestQdrant_BuildValidatesBeforeDialing(t *testing.T) {
	q := NewQdrant(Connection{"host": "127.0.0.1", "port": "1"}, nil)
	_, err := q.Build(context.Background(), testCorpus(), models.MetricCosine, Params{"batch_size": 0})
	assert.ErrorIs(t, err, models.ErrConfigRejected)

	_, err = q.Build(context.Background(), nil, models.MetricCosine, nil)
	assert.ErrorIs(t, err, models.ErrConfigRejected)
}
