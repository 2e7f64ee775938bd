// Package qdrant implements store.Gateway against a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/paperscope/paperscope/internal/store"
)

// Qdrant point ids must be UUIDs or integers, so deterministic chunk ids are
// mapped to UUIDv5 in this namespace. The original id travels in the payload.
var idNamespace = uuid.MustParse("9e6d1d2c-5c4f-4a61-a3c2-52a4ec9a3c11")

const idKey = "_record_id"

// Gateway is a Qdrant-backed vector store gateway.
type Gateway struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	qdrant      pb.QdrantClient
	collection  string
	batchSize   int
}

// New connects to Qdrant at host:port and targets the named collection.
func New(host string, port int, collection string, batchSize int) (*Gateway, error) {
	if batchSize <= 0 {
		batchSize = store.DefaultBatchSize
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Gateway{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		qdrant:      pb.NewQdrantClient(conn),
		collection:  collection,
		batchSize:   batchSize,
	}, nil
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{
		Uuid: uuid.NewSHA1(idNamespace, []byte(id)).String(),
	}}
}

func (g *Gateway) EnsureCollection(ctx context.Context, dimension int, metric string) error {
	if dimension <= 0 {
		return fmt.Errorf("qdrant: invalid dimension %d", dimension)
	}
	distance := pb.Distance_Cosine
	if strings.EqualFold(metric, "dot") {
		distance = pb.Distance_Dot
	}
	_, err := g.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: g.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dimension), Distance: distance},
			},
		},
	})
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

func (g *Gateway) Upsert(ctx context.Context, records []store.Record) error {
	for start := 0; start < len(records); start += g.batchSize {
		end := start + g.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		points := make([]*pb.PointStruct, len(batch))
		for i, rec := range batch {
			payload := toPayload(rec.Metadata)
			payload[idKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: rec.ID}}
			points[i] = &pb.PointStruct{
				Id:      pointID(rec.ID),
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}}},
				Payload: payload,
			}
		}

		_, err := g.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: g.collection,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant upsert: %w", err)
		}
	}
	return nil
}

func (g *Gateway) Search(ctx context.Context, vector []float32, topK int, filter store.Filter) ([]store.Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: g.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		req.Filter = toFilter(filter)
	}

	resp, err := g.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := make([]store.Hit, len(resp.Result))
	for i, pt := range resp.Result {
		meta := fromPayload(pt.Payload)
		id, _ := meta[idKey].(string)
		delete(meta, idKey)
		if id == "" {
			id = pt.Id.GetUuid()
		}
		hits[i] = store.Hit{ID: id, Score: pt.Score, Metadata: meta}
	}
	return hits, nil
}

func (g *Gateway) Fetch(ctx context.Context, id string) (*store.Record, error) {
	resp, err := g.points.Get(ctx, &pb.GetPoints{
		CollectionName: g.collection,
		Ids:            []*pb.PointId{pointID(id)},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant fetch: %w", err)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}

	pt := resp.Result[0]
	meta := fromPayload(pt.Payload)
	delete(meta, idKey)
	return &store.Record{
		ID:       id,
		Vector:   pt.GetVectors().GetVector().GetData(),
		Metadata: meta,
	}, nil
}

func (g *Gateway) DeleteCollection(ctx context.Context) error {
	_, err := g.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: g.collection})
	if err != nil && strings.Contains(err.Error(), "doesn't exist") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("qdrant delete collection: %w", err)
	}
	return nil
}

func (g *Gateway) HealthCheck(ctx context.Context) bool {
	_, err := g.qdrant.HealthCheck(ctx, &pb.HealthCheckRequest{})
	return err == nil
}

// Close releases the gRPC connection.
func (g *Gateway) Close() error {
	return g.conn.Close()
}

func toPayload(metadata map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = toValue(v)
	}
	return payload
}

func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(val)}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(val)}}
	}
}

func fromPayload(payload map[string]*pb.Value) map[string]any {
	meta := make(map[string]any, len(payload))
	for k, v := range payload {
		meta[k] = fromValue(v)
	}
	return meta
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}

func toFilter(filter store.Filter) *pb.Filter {
	conditions := make([]*pb.Condition, 0, len(filter))
	for k, v := range filter {
		var match *pb.Match
		switch val := v.(type) {
		case string:
			match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: val}}
		case int:
			match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(val)}}
		case int64:
			match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: val}}
		case bool:
			match = &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: val}}
		default:
			match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: fmt.Sprint(val)}}
		}
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{Key: k, Match: match},
			},
		})
	}
	return &pb.Filter{Must: conditions}
}

var _ store.Gateway = (*Gateway)(nil)
