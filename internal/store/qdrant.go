package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/asanagraph/asanagraph/internal/models"
)

const (
	qdrantDialTimeout = 10 * time.Second
	qdrantReadTimeout = 10 * time.Second
)

// QdrantIndex implements Index using Qdrant's gRPC API. Each hit's payload
// carries the document metadata written by the ingestion job: courses store
// course/challenge/duration/description, categories store category.
type QdrantIndex struct {
	conn         *grpc.ClientConn
	points       pb.PointsClient
	collections  pb.CollectionsClient
	courseColl   string
	categoryColl string
	logger       *slog.Logger
}

// NewQdrantIndex creates a new Qdrant index connection and verifies it with
// a lightweight RPC.
func NewQdrantIndex(host string, port int, courseColl, categoryColl string, useTLS bool, logger *slog.Logger) (*QdrantIndex, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	opts := []grpc.DialOption{}
	if !useTLS {
		logger.Warn("Qdrant connection using insecure credentials (no TLS)")
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to Qdrant at %s: %w", addr, err)
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), qdrantDialTimeout)
	defer dialCancel()
	if _, err := pb.NewCollectionsClient(conn).List(dialCtx, &pb.ListCollectionsRequest{}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("verifying Qdrant connection at %s: %w", addr, err)
	}

	logger.Info("connected to Qdrant", "addr", addr, "course_collection", courseColl, "category_collection", categoryColl)

	return &QdrantIndex{
		conn:         conn,
		points:       pb.NewPointsClient(conn),
		collections:  pb.NewCollectionsClient(conn),
		courseColl:   courseColl,
		categoryColl: categoryColl,
		logger:       logger,
	}, nil
}

func (q *QdrantIndex) SearchCourses(ctx context.Context, vector []float32, limit uint64) ([]models.CourseHit, error) {
	points, err := q.search(ctx, q.courseColl, vector, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]models.CourseHit, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()
		name := getStringValue(payload, "course")
		if name == "" {
			q.logger.Warn("course hit missing course payload field, skipping")
			continue
		}
		hits = append(hits, models.CourseHit{
			Name:        name,
			Description: getStringValue(payload, "description"),
			Challenge:   getStringValue(payload, "challenge"),
			Duration:    getStringValue(payload, "duration"),
			Score:       float64(point.GetScore()),
		})
	}

	return hits, nil
}

func (q *QdrantIndex) SearchCategories(ctx context.Context, vector []float32, limit uint64) ([]string, error) {
	points, err := q.search(ctx, q.categoryColl, vector, limit)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(points))
	for _, point := range points {
		name := getStringValue(point.GetPayload(), "category")
		if name == "" {
			continue
		}
		names = append(names, name)
	}

	return names, nil
}

func (q *QdrantIndex) search(ctx context.Context, collection string, vector []float32, limit uint64) ([]*pb.ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, qdrantReadTimeout)
	defer cancel()

	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	return resp.GetResult(), nil
}

// Health lists collections and checks that both expected ones exist.
func (q *QdrantIndex) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, qdrantReadTimeout)
	defer cancel()

	resp, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	found := map[string]bool{}
	for _, c := range resp.GetCollections() {
		found[c.GetName()] = true
	}
	for _, want := range []string{q.courseColl, q.categoryColl} {
		if !found[want] {
			return fmt.Errorf("collection %q not found", want)
		}
	}

	return nil
}

func (q *QdrantIndex) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}
