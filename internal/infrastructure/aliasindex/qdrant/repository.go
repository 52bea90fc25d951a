// Package qdrant provides an AliasIndex implementation using Qdrant.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
	"github.com/narravid/narravid/internal/infrastructure/config"
)

// Repository implements the AliasIndex interface using Qdrant.
type Repository struct {
	client     pb.CollectionsClient
	points     pb.PointsClient
	collection string
	conn       *grpc.ClientConn
}

// NewRepository creates a new Qdrant alias index.
func NewRepository(cfg config.QdrantConfig) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &Repository{
		client:     pb.NewCollectionsClient(conn),
		points:     pb.NewPointsClient(conn),
		collection: cfg.Collection,
		conn:       conn,
	}, nil
}

// Close closes the gRPC connection.
func (r *Repository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// EnsureCollection creates the collection if it doesn't exist.
func (r *Repository) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	_, err := r.client.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collection,
	})
	if err == nil {
		return nil
	}

	_, err = r.client.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	return nil
}

// DeleteCollection drops the collection entirely.
func (r *Repository) DeleteCollection(ctx context.Context) error {
	_, err := r.client.Delete(ctx, &pb.DeleteCollection{
		CollectionName: r.collection,
	})
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

// Save upserts alias points. Point IDs derive from entity and alias so
// re-saving the same alias overwrites instead of duplicating.
func (r *Repository) Save(ctx context.Context, aliasPoints []ports.AliasPoint) error {
	if len(aliasPoints) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(aliasPoints))
	for _, ap := range aliasPoints {
		pointID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(ap.EntityID+"\x00"+entities.NormalizeSurface(ap.Alias))).String()

		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{
					Uuid: pointID,
				},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{
						Data: ap.Embedding,
					},
				},
			},
			Payload: map[string]*pb.Value{
				"entity_id": {Kind: &pb.Value_StringValue{StringValue: ap.EntityID}},
				"kind":      {Kind: &pb.Value_StringValue{StringValue: string(ap.Kind)}},
				"alias":     {Kind: &pb.Value_StringValue{StringValue: ap.Alias}},
			},
		})
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting alias points: %w", err)
	}

	return nil
}

// Search returns the closest aliases of the given kind.
func (r *Repository) Search(ctx context.Context, embedding []float32, kind entities.EntityKind, limit int) ([]ports.AliasMatch, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		Filter: &pb.Filter{
			Must: []*pb.Condition{
				{
					ConditionOneOf: &pb.Condition_Field{
						Field: &pb.FieldCondition{
							Key: "kind",
							Match: &pb.Match{
								MatchValue: &pb.Match_Keyword{
									Keyword: string(kind),
								},
							},
						},
					},
				},
			},
		},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching alias points: %w", err)
	}

	matches := make([]ports.AliasMatch, 0, len(resp.Result))
	for _, point := range resp.Result {
		matches = append(matches, ports.AliasMatch{
			EntityID: payloadString(point.Payload, "entity_id"),
			Alias:    payloadString(point.Payload, "alias"),
			Score:    float64(point.Score),
		})
	}
	return matches, nil
}

// DeleteEntity removes every alias point belonging to an entity.
func (r *Repository) DeleteEntity(ctx context.Context, entityID string) error {
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						{
							ConditionOneOf: &pb.Condition_Field{
								Field: &pb.FieldCondition{
									Key: "entity_id",
									Match: &pb.Match{
										MatchValue: &pb.Match_Keyword{
											Keyword: entityID,
										},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting alias points: %w", err)
	}

	return nil
}

// payloadString extracts a string payload field, empty if absent.
func payloadString(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}
