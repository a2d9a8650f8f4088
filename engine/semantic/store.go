package semantic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const scrollPage = 256

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of all Qdrant operations. It is not bound to
// a collection; every call names the collection it acts on.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	logger      *slog.Logger
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, logger *slog.Logger) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	vs := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), logger)
	vs.conn = conn
	return vs, nil
}

// NewWithClients builds a VectorStore over pre-built clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, logger *slog.Logger) *VectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{points: points, collections: collections, logger: logger}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// ListCollections returns the names of all collections.
func (v *VectorStore) ListCollections(ctx context.Context) ([]string, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, domain.Upstream("vector", "list collections", err)
	}
	names := make([]string, 0, len(list.GetCollections()))
	for _, c := range list.GetCollections() {
		names = append(names, c.GetName())
	}
	return names, nil
}

// CollectionExists reports whether name is present in the collection listing.
func (v *VectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	names, err := v.ListCollections(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCollection creates the collection with cosine distance if it doesn't
// exist. created reports whether a creation happened.
func (v *VectorStore) EnsureCollection(ctx context.Context, name string, dims int) (created bool, err error) {
	if dims <= 0 {
		return false, domain.NewValidationError("vector_size", fmt.Sprint(dims), domain.ErrInvalidInput)
	}
	exists, err := v.CollectionExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		v.logger.Debug("collection exists", "collection", name)
		return false, nil
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return false, domain.Upstream("vector", "create collection "+name, err)
	}
	v.logger.Info("collection created", "collection", name, "dims", dims)
	return true, nil
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context, name string) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil {
		return domain.Upstream("vector", "delete collection "+name, err)
	}
	return nil
}

// Upsert stores embedding records in one call and waits for the write to be
// applied.
func (v *VectorStore) Upsert(ctx context.Context, collection string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: encodePayload(r.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return domain.Upstream("vector", fmt.Sprintf("upsert %d points", len(records)), err)
	}
	return nil
}

// DeleteByDocID removes all points of a document. Used before re-ingestion.
func (v *VectorStore) DeleteByDocID(ctx context.Context, collection, docID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: buildFilter(map[string]string{KeyDocID: docID}),
			},
		},
	})
	if err != nil {
		return domain.Upstream("vector", "delete doc "+docID, err)
	}
	return nil
}

// Search performs k-NN similarity search with keyword-equality filters.
// Results come back in the store's ranking order.
func (v *VectorStore) Search(ctx context.Context, collection string, embedding []float32, limit int, filters map[string]string) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		Filter:         buildFilter(filters),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, domain.Upstream("vector", "search "+collection, err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = SearchResult{
			ID:    pointID(r.GetId()),
			Score: r.GetScore(),
			Chunk: decodeChunk(r.GetPayload()),
		}
	}
	return results, nil
}

// Scroll pages through points matching filters until limit points have been
// read or the collection is exhausted. Order is the store's id order.
func (v *VectorStore) Scroll(ctx context.Context, collection string, filters map[string]string, limit int) ([]SearchResult, error) {
	var (
		out    []SearchResult
		offset *pb.PointId
	)
	for len(out) < limit {
		page := uint32(min(scrollPage, limit-len(out)))
		resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: collection,
			Filter:         buildFilter(filters),
			Offset:         offset,
			Limit:          &page,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, domain.Upstream("vector", "scroll "+collection, err)
		}
		for _, p := range resp.GetResult() {
			out = append(out, SearchResult{ID: pointID(p.GetId()), Chunk: decodeChunk(p.GetPayload())})
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}
	return out, nil
}

func buildFilter(filters map[string]string) *pb.Filter {
	if len(filters) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(filters))
	for k, val := range filters {
		must = append(must, fieldMatch(k, val))
	}
	return &pb.Filter{Must: must}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func encodePayload(in map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(in))
	for k, val := range in {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

func decodeChunk(p map[string]*pb.Value) domain.Chunk {
	c := domain.Chunk{
		DocID:      p[KeyDocID].GetStringValue(),
		Unit:       p[KeyUnit].GetStringValue(),
		SubChapter: p[KeySubChapter].GetStringValue(),
		Index:      int(intValue(p[KeyChunkIndex])),
		Text:       p[KeyText].GetStringValue(),
	}
	if start, ok := p[KeyPageStart]; ok {
		c.Pages = &domain.PageRange{Start: int(intValue(start)), End: int(intValue(p[KeyPageEnd]))}
	}
	return c
}

func intValue(v *pb.Value) int64 {
	if _, ok := v.GetKind().(*pb.Value_DoubleValue); ok {
		return int64(v.GetDoubleValue())
	}
	return v.GetIntegerValue()
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}
