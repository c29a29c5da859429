package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	wmodels "github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/hyperjump/vecbench/internal/models"
)

// TypeWeaviate is the Weaviate adapter.
const TypeWeaviate = "weaviate"

const (
	defaultWeaviateBatch = 100
	weaviateIDProperty   = "item_id"
)

// Weaviate indexes asynchronously; readiness waits for the class's vector
// queues to drain.
type Weaviate struct {
	conn   Connection
	logger *zap.Logger
}

type weaviateHandle struct {
	client   *weaviate.Client
	class    string
	metric   models.Metric
	expected int64
}

func (*weaviateHandle) BackendName() string { return TypeWeaviate }

// NewWeaviate creates a Weaviate adapter for the given connection.
func NewWeaviate(conn Connection, logger *zap.Logger) *Weaviate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Weaviate{conn: conn, logger: logger.Named(TypeWeaviate)}
}

func (w *Weaviate) Name() string { return TypeWeaviate }

func (w *Weaviate) Capabilities() Capabilities {
	return Capabilities{
		Metrics: []models.Metric{models.MetricCosine, models.MetricEuclidean, models.MetricDot},
		Params: map[string]ParamKind{
			"ef":              ParamInt,
			"ef_construction": ParamInt,
			"max_connections": ParamInt,
			"batch_size":      ParamInt,
		},
		Remote:               true,
		EventuallyConsistent: true,
	}
}

func weaviateDistance(metric models.Metric) (string, error) {
	switch metric {
	case models.MetricCosine:
		return "cosine", nil
	case models.MetricEuclidean:
		return "l2-squared", nil
	case models.MetricDot:
		return "dot", nil
	default:
		return "", fmt.Errorf("%w: metric %q", models.ErrConfigRejected, metric)
	}
}

// weaviateToDistance converts Weaviate's reported distance; l2-squared is rooted.
func weaviateToDistance(metric models.Metric, d float64) float64 {
	if metric == models.MetricEuclidean {
		return math.Sqrt(math.Max(d, 0))
	}
	return d
}

// weaviateObjectID derives a stable UUID from an item ID.
func weaviateObjectID(id string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func weaviateClass(class string, distance string, ef, efConstruction, maxConnections int) *wmodels.Class {
	cfg := map[string]interface{}{"distance": distance}
	if ef > 0 {
		cfg["ef"] = ef
	}
	if efConstruction > 0 {
		cfg["efConstruction"] = efConstruction
	}
	if maxConnections > 0 {
		cfg["maxConnections"] = maxConnections
	}
	return &wmodels.Class{
		Class:           class,
		Description:     "vecbench corpus",
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
		Properties: []*wmodels.Property{
			{Name: weaviateIDProperty, DataType: []string{"text"}},
		},
		VectorIndexConfig: cfg,
	}
}

func classifyWeaviate(op string, err error) error {
	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) {
		switch {
		case clientErr.StatusCode == 400 || clientErr.StatusCode == 422:
			return fmt.Errorf("%w: weaviate %s: %v", models.ErrConfigRejected, op, err)
		case clientErr.StatusCode == 0 || clientErr.StatusCode == 401 || clientErr.StatusCode == 403 || clientErr.StatusCode >= 500:
			return fmt.Errorf("%w: weaviate %s: %v", models.ErrBackendUnavailable, op, err)
		}
	}
	return fmt.Errorf("weaviate %s: %w", op, err)
}

// weaviateBatchErrors collects per-object failures from a batch response.
func weaviateBatchErrors(resp []wmodels.ObjectsGetResponse) error {
	var msgs []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > 3 {
		msgs = append(msgs[:3], fmt.Sprintf("and %d more", len(msgs)-3))
	}
	return fmt.Errorf("weaviate batch: %s", strings.Join(msgs, "; "))
}

// weaviateQueueState sums object counts and pending vector queue entries for class.
func weaviateQueueState(resp *wmodels.NodesStatusResponse, class string) (objects, queued int64) {
	if resp == nil {
		return 0, 0
	}
	for _, n := range resp.Nodes {
		if n == nil {
			continue
		}
		for _, s := range n.Shards {
			if s == nil || s.Class != class {
				continue
			}
			objects += s.ObjectCount
			queued += s.VectorQueueLength
		}
	}
	return objects, queued
}

// weaviateHits parses a GraphQL Get response into neighbors.
func weaviateHits(metric models.Metric, class string, data map[string]wmodels.JSONObject) ([]models.Neighbor, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("weaviate: response missing Get")
	}
	raw, ok := get[class].([]interface{})
	if !ok {
		if get[class] == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("weaviate: unexpected %s payload %T", class, get[class])
	}
	out := make([]models.Neighbor, 0, len(raw))
	for _, r := range raw {
		obj, ok := r.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("weaviate: unexpected hit %T", r)
		}
		id, _ := obj[weaviateIDProperty].(string)
		if id == "" {
			return nil, fmt.Errorf("weaviate: hit without %s", weaviateIDProperty)
		}
		add, _ := obj["_additional"].(map[string]interface{})
		d, ok := add["distance"].(float64)
		if !ok {
			return nil, fmt.Errorf("weaviate: hit %s without distance", id)
		}
		out = append(out, models.Neighbor{ID: id, Distance: weaviateToDistance(metric, d)})
	}
	return out, nil
}

// weaviateHTTPClient retries transient failures (connection errors, 429, 5xx)
// and, when apiKey is set, sends it as a bearer token on every attempt.
func weaviateHTTPClient(apiKey string, waitMin, waitMax time.Duration) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = waitMin
	retryClient.RetryWaitMax = waitMax
	retryClient.Logger = nil
	client := retryClient.StandardClient()
	if apiKey != "" {
		client.Transport = &apiKeyTransport{key: apiKey, next: client.Transport}
	}
	return client
}

type apiKeyTransport struct {
	key  string
	next http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.key)
	return t.next.RoundTrip(req)
}

func (w *Weaviate) newClient() (*weaviate.Client, error) {
	return weaviate.NewClient(weaviate.Config{
		Host:             w.conn.Get("host", "localhost:8080"),
		Scheme:           w.conn.Get("scheme", "http"),
		ConnectionClient: weaviateHTTPClient(w.conn.Get("api_key", ""), 200*time.Millisecond, 5*time.Second),
		StartupTimeout:   10 * time.Second,
	})
}

func (w *Weaviate) Build(ctx context.Context, corpus []models.Item, metric models.Metric, params Params) (Handle, error) {
	distance, err := weaviateDistance(metric)
	if err != nil {
		return nil, err
	}
	ef, err := params.Int("ef", 0)
	if err != nil {
		return nil, err
	}
	efConstruction, err := params.Int("ef_construction", 0)
	if err != nil {
		return nil, err
	}
	maxConnections, err := params.Int("max_connections", 0)
	if err != nil {
		return nil, err
	}
	batch, err := params.Int("batch_size", defaultWeaviateBatch)
	if err != nil {
		return nil, err
	}
	if batch <= 0 {
		return nil, fmt.Errorf("%w: batch_size must be positive", models.ErrConfigRejected)
	}
	if len(corpus) == 0 {
		return nil, fmt.Errorf("%w: empty corpus", models.ErrConfigRejected)
	}

	client, err := w.newClient()
	if err != nil {
		return nil, fmt.Errorf("%w: weaviate client: %v", models.ErrBackendUnavailable, err)
	}
	live, err := client.Misc().LiveChecker().Do(ctx)
	if err != nil || !live {
		return nil, fmt.Errorf("%w: weaviate not live: %v", models.ErrBackendUnavailable, err)
	}

	h := &weaviateHandle{
		client:   client,
		class:    w.conn.Get("class", "Vecbench"),
		metric:   metric,
		expected: int64(len(corpus)),
	}
	_ = client.Schema().ClassDeleter().WithClassName(h.class).Do(ctx)
	class := weaviateClass(h.class, distance, ef, efConstruction, maxConnections)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return h, classifyWeaviate("create class", err)
	}

	for off := 0; off < len(corpus); off += batch {
		end := min(off+batch, len(corpus))
		batcher := client.Batch().ObjectsBatcher()
		for _, it := range corpus[off:end] {
			batcher = batcher.WithObject(&wmodels.Object{
				Class:      h.class,
				ID:         weaviateObjectID(it.ID),
				Properties: map[string]interface{}{weaviateIDProperty: it.ID},
				Vector:     it.Vector,
			})
		}
		resp, err := batcher.Do(ctx)
		if err != nil {
			return h, classifyWeaviate(fmt.Sprintf("import batch %d-%d", off, end), err)
		}
		if err := weaviateBatchErrors(resp); err != nil {
			return h, err
		}
	}
	w.logger.Info("Class loaded",
		zap.String("class", h.class),
		zap.Int("objects", len(corpus)),
		zap.Int("batch_size", batch))
	return h, nil
}

func (w *Weaviate) Ready(ctx context.Context, h Handle) (bool, error) {
	wh, err := handleAs[*weaviateHandle](h, TypeWeaviate)
	if err != nil {
		return false, err
	}
	status, err := wh.client.Cluster().NodesStatusGetter().WithOutput("verbose").Do(ctx)
	if err != nil {
		return false, classifyWeaviate("nodes status", err)
	}
	objects, queued := weaviateQueueState(status, wh.class)
	return objects >= wh.expected && queued == 0, nil
}

func (w *Weaviate) Query(ctx context.Context, h Handle, vec []float32, k int) ([]models.Neighbor, error) {
	wh, err := handleAs[*weaviateHandle](h, TypeWeaviate)
	if err != nil {
		return nil, err
	}
	gql := wh.client.GraphQL()
	resp, err := gql.Get().
		WithClassName(wh.class).
		WithFields(
			graphql.Field{Name: weaviateIDProperty},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
		).
		WithNearVector(gql.NearVectorArgBuilder().WithVector(vec)).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, classifyWeaviate("query", err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("weaviate query: %s", strings.Join(msgs, "; "))
	}
	return weaviateHits(wh.metric, wh.class, resp.Data)
}

func (w *Weaviate) Teardown(ctx context.Context, h Handle) error {
	if h == nil {
		return nil
	}
	wh, err := handleAs[*weaviateHandle](h, TypeWeaviate)
	if err != nil {
		return err
	}
	if err := wh.client.Schema().ClassDeleter().WithClassName(wh.class).Do(ctx); err != nil {
		return classifyWeaviate("delete class", err)
	}
	return nil
}
