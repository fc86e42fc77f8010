package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/asanagraph/asanagraph/internal/models"
)

const neo4jConnectTimeout = 10 * time.Second

// Neo4jStore implements Store over a Neo4j property graph. Node labels and
// relationship types follow the ingestion job's schema: Pose, Course, and
// Category nodes keyed by id, INCLUDES_POSE relationships carrying
// order/duration_seconds/repeat_times, and IN_CATEGORY membership.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, uri, user, password, database string, logger *slog.Logger) (*Neo4jStore, error) {
	auth := neo4j.BasicAuth(user, password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(cfg *neo4j.Config) {
		cfg.SocketConnectTimeout = neo4jConnectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("creating Neo4j driver for %s: %w", uri, err)
	}

	vctx, cancel := context.WithTimeout(ctx, neo4jConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying Neo4j connectivity at %s: %w", uri, err)
	}

	logger.Info("connected to Neo4j", "uri", uri)

	return &Neo4jStore{
		driver:   driver,
		database: database,
		logger:   logger,
	}, nil
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
}

func (s *Neo4jStore) GetCourse(ctx context.Context, name string) (models.Course, []models.PoseSlot, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (c:Course {id: $name})
			OPTIONAL MATCH (c)-[rel:INCLUDES_POSE]->(p:Pose)
			WITH c, rel, p
			ORDER BY rel.order
			RETURN c.description AS description,
			       c.challenge AS challenge,
			       c.total_duration AS total_duration,
			       collect({
			           pose: p.id,
			           order: rel.order,
			           duration_seconds: rel.duration_seconds,
			           repeat_times: rel.repeat_times
			       }) AS sequence`,
			map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		if strings.Contains(err.Error(), "no more records") || strings.Contains(err.Error(), "result contains no") {
			return models.Course{}, nil, fmt.Errorf("course %q: %w", name, ErrNotFound)
		}
		return models.Course{}, nil, fmt.Errorf("getting course %q: %w", name, err)
	}

	record := result.(*neo4j.Record)
	course := models.Course{
		Name:          name,
		Description:   recordString(record, "description"),
		Challenge:     int(recordInt(record, "challenge")),
		TotalDuration: recordString(record, "total_duration"),
	}

	var slots []models.PoseSlot
	if raw, ok := record.Get("sequence"); ok {
		if items, ok := raw.([]any); ok {
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok || m["pose"] == nil {
					continue
				}
				slots = append(slots, models.PoseSlot{
					PoseName:        asString(m["pose"]),
					Order:           int(asInt(m["order"])),
					DurationSeconds: int(asInt(m["duration_seconds"])),
					RepeatTimes:     int(asInt(m["repeat_times"])),
				})
			}
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Order < slots[j].Order })

	if err := models.ValidateSlots(slots); err != nil {
		return models.Course{}, nil, fmt.Errorf("course %q has invalid slots: %w", name, err)
	}

	return course, slots, nil
}

func (s *Neo4jStore) GetPose(ctx context.Context, name string) (models.Pose, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Pose {id: $name})
			OPTIONAL MATCH (p)-[r:BUILD_UP|MOVE_FORWARD|BALANCE_OUT|UNWIND]->(t:Pose)
			RETURN p AS pose,
			       collect({kind: type(r), target: t.id}) AS relations`,
			map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		if strings.Contains(err.Error(), "no more records") || strings.Contains(err.Error(), "result contains no") {
			return models.Pose{}, fmt.Errorf("pose %q: %w", name, ErrNotFound)
		}
		return models.Pose{}, fmt.Errorf("getting pose %q: %w", name, err)
	}

	record := result.(*neo4j.Record)
	raw, _ := record.Get("pose")
	node, ok := raw.(neo4j.Node)
	if !ok {
		return models.Pose{}, fmt.Errorf("pose %q: %w", name, ErrNotFound)
	}

	pose := poseFromProps(name, node.Props)

	if rawRels, ok := record.Get("relations"); ok {
		if items, ok := rawRels.([]any); ok {
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok || m["target"] == nil {
					continue
				}
				kind := models.RelationKind(asString(m["kind"]))
				if !kind.IsValid() {
					continue
				}
				if pose.Relations == nil {
					pose.Relations = make(map[models.RelationKind][]string)
				}
				pose.Relations[kind] = append(pose.Relations[kind], asString(m["target"]))
			}
		}
	}

	return pose, nil
}

func (s *Neo4jStore) PosesInCategory(ctx context.Context, category, excluding string) ([]models.Pose, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (c:Category {id: $category})<-[:IN_CATEGORY]-(p:Pose)
			WHERE p.id <> $excluding
			RETURN p AS pose
			ORDER BY p.id`,
			map[string]any{"category": category, "excluding": excluding})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("listing poses in category %q: %w", category, err)
	}

	records := result.([]*neo4j.Record)
	poses := make([]models.Pose, 0, len(records))
	for _, record := range records {
		raw, _ := record.Get("pose")
		node, ok := raw.(neo4j.Node)
		if !ok {
			continue
		}
		poses = append(poses, poseFromProps(asString(node.Props["id"]), node.Props))
	}

	return poses, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// --- Helper functions ---

// poseFromProps materializes a Pose from node properties. The ingestion job
// stores steps as a list of strings; older dumps store a single string, so
// both shapes are accepted.
func poseFromProps(name string, props map[string]any) models.Pose {
	return models.Pose{
		Name:         name,
		Introduction: asString(props["introduction"]),
		Steps:        asJoinedString(props["steps"]),
		Modification: asString(props["modification"]),
		Caution:      asString(props["caution"]),
		Effects:      asString(props["effects"]),
		PracticeNote: asString(props["practice_note"]),
		HowToComeOut: asString(props["how_to_come_out"]),
		Attributes:   asStringSlice(props["attribute"]),
		Challenge:    int(asInt(props["challenge"])),
		Category:     asString(props["category"]),
	}
}

func recordString(record *neo4j.Record, key string) string {
	v, _ := record.Get(key)
	return asString(v)
}

func recordInt(record *neo4j.Record, key string) int64 {
	v, _ := record.Get(key)
	return asInt(v)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asJoinedString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func asStringSlice(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
