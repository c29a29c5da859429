package backend

import (
	"context"
	"errors"
	"fmt"
	"net"

	qpb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hyperjump/vecbench/internal/models"
)

// TypeQdrant is the Qdrant adapter over its gRPC API.
const TypeQdrant = "qdrant"

const defaultQdrantBatch = 256

// Qdrant talks to a Qdrant server through the raw gRPC clients. Points are
// addressed by their corpus position; the handle maps them back to item IDs.
type Qdrant struct {
	conn   Connection
	logger *zap.Logger
}

type qdrantHandle struct {
	conn        *grpc.ClientConn
	collections qpb.CollectionsClient
	points      qpb.PointsClient
	collection  string
	apiKey      string
	metric      models.Metric
	ids         []string
	search      *qpb.SearchParams
}

func (*qdrantHandle) BackendName() string { return TypeQdrant }

func (h *qdrantHandle) ctx(ctx context.Context) context.Context {
	if h.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", h.apiKey)
}

// NewQdrant creates a Qdrant adapter for the given connection.
func NewQdrant(conn Connection, logger *zap.Logger) *Qdrant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Qdrant{conn: conn, logger: logger.Named(TypeQdrant)}
}

func (q *Qdrant) Name() string { return TypeQdrant }

func (q *Qdrant) Capabilities() Capabilities {
	return Capabilities{
		Metrics: []models.Metric{models.MetricCosine, models.MetricEuclidean, models.MetricDot},
		Params: map[string]ParamKind{
			"m":            ParamInt,
			"ef_construct": ParamInt,
			"hnsw_ef":      ParamInt,
			"exact":        ParamBool,
			"batch_size":   ParamInt,
		},
		Remote:               true,
		EventuallyConsistent: true,
	}
}

func qdrantDistance(metric models.Metric) (qpb.Distance, error) {
	switch metric {
	case models.MetricCosine:
		return qpb.Distance_Cosine, nil
	case models.MetricEuclidean:
		return qpb.Distance_Euclid, nil
	case models.MetricDot:
		return qpb.Distance_Dot, nil
	default:
		return qpb.Distance_UnknownDistance, fmt.Errorf("%w: metric %q", models.ErrConfigRejected, metric)
	}
}

// qdrantScoreToDistance converts a Qdrant score into the smaller-is-closer convention.
func qdrantScoreToDistance(metric models.Metric, score float32) float64 {
	switch metric {
	case models.MetricCosine:
		return 1 - float64(score)
	case models.MetricDot:
		return -float64(score)
	default:
		return float64(score)
	}
}

// qdrantPoints converts corpus items into points keyed by position.
func qdrantPoints(items []models.Item, offset int) []*qpb.PointStruct {
	out := make([]*qpb.PointStruct, len(items))
	for i, it := range items {
		out[i] = &qpb.PointStruct{
			Id: &qpb.PointId{PointIdOptions: &qpb.PointId_Num{Num: uint64(offset + i)}},
			Vectors: &qpb.Vectors{
				VectorsOptions: &qpb.Vectors_Vector{
					Vector: &qpb.Vector{Data: it.Vector},
				},
			},
		}
	}
	return out
}

// qdrantNeighbors maps scored points back to item IDs, ascending by distance.
func qdrantNeighbors(metric models.Metric, ids []string, hits []*qpb.ScoredPoint) ([]models.Neighbor, error) {
	out := make([]models.Neighbor, 0, len(hits))
	for _, hit := range hits {
		num := hit.GetId().GetNum()
		if num >= uint64(len(ids)) {
			return nil, fmt.Errorf("qdrant: unknown point id %d", num)
		}
		out = append(out, models.Neighbor{ID: ids[num], Distance: qdrantScoreToDistance(metric, hit.GetScore())})
	}
	return out, nil
}

// classifyGRPC maps transport failures onto the error taxonomy.
func classifyGRPC(op string, err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return fmt.Errorf("%w: qdrant %s: %v", models.ErrConfigRejected, op, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: qdrant %s: %v", models.ErrBackendUnavailable, op, err)
	default:
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
}

func uint64Ptr(v int) *uint64 {
	if v <= 0 {
		return nil
	}
	u := uint64(v)
	return &u
}

func (q *Qdrant) Build(ctx context.Context, corpus []models.Item, metric models.Metric, params Params) (Handle, error) {
	distance, err := qdrantDistance(metric)
	if err != nil {
		return nil, err
	}
	m, err := params.Int("m", 0)
	if err != nil {
		return nil, err
	}
	efConstruct, err := params.Int("ef_construct", 0)
	if err != nil {
		return nil, err
	}
	hnswEf, err := params.Int("hnsw_ef", 0)
	if err != nil {
		return nil, err
	}
	exact, err := params.Bool("exact", false)
	if err != nil {
		return nil, err
	}
	batch, err := params.Int("batch_size", defaultQdrantBatch)
	if err != nil {
		return nil, err
	}
	if batch <= 0 {
		return nil, fmt.Errorf("%w: batch_size must be positive", models.ErrConfigRejected)
	}
	if len(corpus) == 0 {
		return nil, fmt.Errorf("%w: empty corpus", models.ErrConfigRejected)
	}

	addr := net.JoinHostPort(q.conn.Get("host", "localhost"), q.conn.Get("port", "6334"))
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant dial %s: %v", models.ErrBackendUnavailable, addr, err)
	}
	h := &qdrantHandle{
		conn:        conn,
		collections: qpb.NewCollectionsClient(conn),
		points:      qpb.NewPointsClient(conn),
		collection:  q.conn.Get("collection", "vecbench"),
		apiKey:      q.conn.Get("api_key", ""),
		metric:      metric,
		ids:         make([]string, len(corpus)),
		search:      &qpb.SearchParams{HnswEf: uint64Ptr(hnswEf)},
	}
	if exact {
		h.search.Exact = &exact
	}
	rctx := h.ctx(ctx)

	if _, err := qpb.NewQdrantClient(conn).HealthCheck(rctx, &qpb.HealthCheckRequest{}); err != nil {
		return h, fmt.Errorf("%w: qdrant health check %s: %v", models.ErrBackendUnavailable, addr, err)
	}

	_, _ = h.collections.Delete(rctx, &qpb.DeleteCollection{CollectionName: h.collection})
	_, err = h.collections.Create(rctx, &qpb.CreateCollection{
		CollectionName: h.collection,
		VectorsConfig: &qpb.VectorsConfig{
			Config: &qpb.VectorsConfig_Params{
				Params: &qpb.VectorParams{Size: uint64(len(corpus[0].Vector)), Distance: distance},
			},
		},
		HnswConfig: &qpb.HnswConfigDiff{M: uint64Ptr(m), EfConstruct: uint64Ptr(efConstruct)},
	})
	if err != nil {
		return h, classifyGRPC("create collection", err)
	}

	wait := false
	for off := 0; off < len(corpus); off += batch {
		end := min(off+batch, len(corpus))
		for i := off; i < end; i++ {
			h.ids[i] = corpus[i].ID
		}
		_, err := h.points.Upsert(rctx, &qpb.UpsertPoints{
			CollectionName: h.collection,
			Wait:           &wait,
			Points:         qdrantPoints(corpus[off:end], off),
		})
		if err != nil {
			return h, classifyGRPC("upsert", err)
		}
	}
	q.logger.Info("Collection loaded",
		zap.String("collection", h.collection),
		zap.Int("points", len(corpus)),
		zap.Int("batch_size", batch))
	return h, nil
}

func (q *Qdrant) Ready(ctx context.Context, h Handle) (bool, error) {
	qh, err := handleAs[*qdrantHandle](h, TypeQdrant)
	if err != nil {
		return false, err
	}
	resp, err := qh.collections.Get(qh.ctx(ctx), &qpb.GetCollectionInfoRequest{CollectionName: qh.collection})
	if err != nil {
		return false, classifyGRPC("collection info", err)
	}
	info := resp.GetResult()
	return qdrantReady(info, len(qh.ids)), nil
}

// qdrantReady is true once the optimizer is idle and every point is visible.
func qdrantReady(info *qpb.CollectionInfo, expected int) bool {
	if info == nil {
		return false
	}
	return info.GetStatus() == qpb.CollectionStatus_Green && info.GetPointsCount() >= uint64(expected)
}

func (q *Qdrant) Query(ctx context.Context, h Handle, vec []float32, k int) ([]models.Neighbor, error) {
	qh, err := handleAs[*qdrantHandle](h, TypeQdrant)
	if err != nil {
		return nil, err
	}
	resp, err := qh.points.Search(qh.ctx(ctx), &qpb.SearchPoints{
		CollectionName: qh.collection,
		Vector:         vec,
		Limit:          uint64(k),
		Params:         qh.search,
	})
	if err != nil {
		return nil, classifyGRPC("search", err)
	}
	return qdrantNeighbors(qh.metric, qh.ids, resp.GetResult())
}

func (q *Qdrant) Teardown(ctx context.Context, h Handle) error {
	if h == nil {
		return nil
	}
	qh, err := handleAs[*qdrantHandle](h, TypeQdrant)
	if err != nil {
		return err
	}
	_, delErr := qh.collections.Delete(qh.ctx(ctx), &qpb.DeleteCollection{CollectionName: qh.collection})
	if delErr != nil {
		delErr = fmt.Errorf("qdrant: drop collection %s: %w", qh.collection, delErr)
	}
	return errors.Join(delErr, qh.conn.Close())
}
