package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis key and index naming. Multi topology uses one RediSearch index per
// modality; unified topology uses a single index with a modality TAG field.
const (
	redisKeyPrefix     = "vidfuse"
	redisUnifiedIndex  = "vidfuse-unified"
	redisUnifiedPrefix = "vidfuse:seg:"
	distanceField      = "vector_distance"
)

// RedisConfig configures the Redis vector backend.
type RedisConfig struct {
	BackendConfig

	// Addr is the Redis server address (default: localhost:6379).
	Addr string

	// Password is the optional Redis AUTH password.
	Password string

	// DB is the Redis logical database.
	DB int
}

// DefaultRedisConfig returns sensible defaults for the given dimensionality.
func DefaultRedisConfig(dimensions int) RedisConfig {
	return RedisConfig{
		BackendConfig: BackendConfig{
			Dimensions: dimensions,
			Topology:   TopologyMulti,
		},
		Addr: "localhost:6379",
	}
}

// RedisBackend implements VectorBackend against RediSearch HNSW vector
// indexes. FT.SEARCH KNN cosine distances span [0,2]; Raw values are halved
// to [0,1] so they calibrate identically to the in-process HNSW backend.
type RedisBackend struct {
	client *redis.Client
	config RedisConfig
}

var _ VectorBackend = (*RedisBackend)(nil)

// NewRedisBackend connects to Redis and ensures the vector indexes exist.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("redis backend: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Topology == "" {
		cfg.Topology = TopologyMulti
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	b := &RedisBackend{client: client, config: cfg}
	if err := b.ensureIndexes(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return b, nil
}

// indexName returns the RediSearch index for a modality under the configured
// topology.
func (b *RedisBackend) indexName(m Modality) string {
	if b.config.Topology == TopologyUnified {
		return redisUnifiedIndex
	}
	return redisKeyPrefix + "-" + string(m)
}

// keyPrefix returns the hash key prefix indexed by the modality's index.
func (b *RedisBackend) keyPrefix(m Modality) string {
	if b.config.Topology == TopologyUnified {
		return redisUnifiedPrefix
	}
	return redisKeyPrefix + ":" + string(m) + ":"
}

// ensureIndexes creates the FT indexes, tolerating ones that already exist.
func (b *RedisBackend) ensureIndexes(ctx context.Context) error {
	vectorSchema := &redis.FieldSchema{
		FieldName: "embedding",
		FieldType: redis.SearchFieldTypeVector,
		VectorArgs: &redis.FTVectorArgs{
			HNSWOptions: &redis.FTHNSWOptions{
				Type:           "FLOAT32",
				Dim:            b.config.Dimensions,
				DistanceMetric: "COSINE",
			},
		},
	}

	if b.config.Topology == TopologyUnified {
		schema := []*redis.FieldSchema{
			vectorSchema,
			{FieldName: "modality", FieldType: redis.SearchFieldTypeTag},
		}
		return b.createIndex(ctx, redisUnifiedIndex, redisUnifiedPrefix, schema)
	}

	for _, m := range AllModalities() {
		schema := []*redis.FieldSchema{vectorSchema}
		if err := b.createIndex(ctx, b.indexName(m), b.keyPrefix(m), schema); err != nil {
			return err
		}
	}
	return nil
}

func (b *RedisBackend) createIndex(ctx context.Context, index, prefix string, schema []*redis.FieldSchema) error {
	opts := &redis.FTCreateOptions{
		OnHash: true,
		Prefix: []interface{}{prefix},
	}
	err := b.client.FTCreate(ctx, index, opts, schema...).Err()
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	return nil
}

// Upsert writes embeddings as hashes visible to the modality's FT index.
func (b *RedisBackend) Upsert(ctx context.Context, modality Modality, entries []UpsertEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if _, err := ParseModality(string(modality)); err != nil {
		return err
	}

	pipe := b.client.Pipeline()
	for _, e := range entries {
		if len(e.Vector) != b.config.Dimensions {
			return ErrDimensionMismatch{Expected: b.config.Dimensions, Got: len(e.Vector)}
		}

		key := b.keyPrefix(modality) + SegmentKey(e.VideoID, e.SegmentID)
		if b.config.Topology == TopologyUnified {
			key += ":" + string(modality)
		}

		fields := map[string]interface{}{
			"embedding":  encodeVector(e.Vector),
			"video_id":   e.VideoID,
			"segment_id": e.SegmentID,
			"start_time": e.Meta.StartTime,
			"end_time":   e.Meta.EndTime,
			"media_uri":  e.Meta.MediaURI,
		}
		if b.config.Topology == TopologyUnified {
			fields["modality"] = string(modality)
		}
		pipe.HSet(ctx, key, fields)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert %d %s embeddings: %w", len(entries), modality, err)
	}
	return nil
}

// Query runs an FT.SEARCH KNN query against the modality's index.
func (b *RedisBackend) Query(ctx context.Context, modality Modality, vector []float32, topK int) ([]*VectorMatch, error) {
	if _, err := ParseModality(string(modality)); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*VectorMatch{}, nil
	}
	if len(vector) != b.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: b.config.Dimensions, Got: len(vector)}
	}

	filter := "*"
	if b.config.Topology == TopologyUnified {
		filter = fmt.Sprintf("(@modality:{%s})", modality)
	}
	query := fmt.Sprintf("%s=>[KNN %d @embedding $vec AS %s]", filter, topK, distanceField)

	opts := &redis.FTSearchOptions{
		Params:         map[string]interface{}{"vec": encodeVector(vector)},
		SortBy:         []redis.FTSearchSortBy{{FieldName: distanceField, Asc: true}},
		Limit:          topK,
		DialectVersion: 2,
		Return: []redis.FTSearchReturn{
			{FieldName: distanceField},
			{FieldName: "video_id"},
			{FieldName: "segment_id"},
			{FieldName: "start_time"},
			{FieldName: "end_time"},
			{FieldName: "media_uri"},
		},
	}

	res, err := b.client.FTSearchWithArgs(ctx, b.indexName(modality), query, opts).Result()
	if err != nil {
		return nil, fmt.Errorf("knn query on %s: %w", b.indexName(modality), err)
	}

	results := make([]*VectorMatch, 0, len(res.Docs))
	for _, doc := range res.Docs {
		match, ok := b.docToMatch(doc, modality)
		if !ok {
			continue
		}
		results = append(results, match)
	}
	return results, nil
}

// docToMatch converts an FT.SEARCH document to a VectorMatch. Missing
// metadata fields are treated as unknown, never a parse failure.
func (b *RedisBackend) docToMatch(doc redis.Document, modality Modality) (*VectorMatch, bool) {
	videoID := doc.Fields["video_id"]
	if videoID == "" {
		slog.Warn("redis result missing video_id, skipping", slog.String("key", doc.ID))
		return nil, false
	}

	segmentID, err := strconv.Atoi(doc.Fields["segment_id"])
	if err != nil {
		slog.Warn("redis result has bad segment_id, skipping",
			slog.String("key", doc.ID),
			slog.String("segment_id", doc.Fields["segment_id"]))
		return nil, false
	}

	distance, err := strconv.ParseFloat(doc.Fields[distanceField], 64)
	if err != nil {
		slog.Warn("redis result missing distance, skipping", slog.String("key", doc.ID))
		return nil, false
	}

	meta := SegmentMeta{MediaURI: doc.Fields["media_uri"]}
	if v, err := strconv.ParseFloat(doc.Fields["start_time"], 64); err == nil {
		meta.StartTime = v
	}
	if v, err := strconv.ParseFloat(doc.Fields["end_time"], 64); err == nil {
		meta.EndTime = v
	}

	// RediSearch cosine distance spans [0,2]; halve it so the canonical
	// 1-distance conversion maps identical vectors to score 1.
	return &VectorMatch{
		VideoID:   videoID,
		SegmentID: segmentID,
		Modality:  modality,
		Raw:       distance / 2.0,
		Meta:      meta,
	}, true
}

// Kind reports that Raw values are distances.
func (b *RedisBackend) Kind() ScoreKind { return ScoreKindDistance }

// Metric reports the declared distance metric.
func (b *RedisBackend) Metric() string { return "cosine" }

// Dimensions returns the configured embedding dimension.
func (b *RedisBackend) Dimensions() int { return b.config.Dimensions }

// Name identifies the backend family.
func (b *RedisBackend) Name() string { return "redis" }

// Close releases the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// encodeVector serializes a float32 vector as the little-endian byte blob
// RediSearch expects for FLOAT32 vector fields.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, val := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf
}
