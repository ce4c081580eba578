package vectorindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"mnemosyne/internal/model"
)

// payloadIDField stores the original chunk_id in the payload: Qdrant
// point IDs must be UUIDs or positive integers, but chunk IDs are
// arbitrary hex strings, so non-UUID IDs are mapped through a
// deterministic UUIDv5 and the original ID is recovered from the
// payload on read. Grounded verbatim on the teacher's qdrant_vector.go.
const payloadIDField = "_original_id"
const payloadTextField = "_text"

// QdrantVectorStore adapts github.com/qdrant/go-client to the VectorStore
// capability, selected at startup via config.VectorBackend == "qdrant".
// Grounded on internal/persistence/databases/qdrant_vector.go, generalized
// from its string-keyed metadata map to this module's model.Chunk shape.
type QdrantVectorStore struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// NewQdrantVectorStore connects to host:port and ensures the collection
// exists with cosine distance and the given vector dimension.
func NewQdrantVectorStore(ctx context.Context, host string, port int, collection string, dim int) (*QdrantVectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("vectorindex: qdrant collection name is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("vectorindex: qdrant requires dimensions > 0")
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create qdrant client: %w", err)
	}
	s := &QdrantVectorStore{client: client, collection: collection, dim: dim}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("vectorindex: ensure collection: %w", err)
	}
	return s, nil
}

func (s *QdrantVectorStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// pointUUID maps an arbitrary chunk ID to a deterministic UUIDv5, the
// same scheme the teacher uses for non-UUID application IDs.
func pointUUID(chunkID string) string {
	if _, err := uuid.Parse(chunkID); err == nil {
		return chunkID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (s *QdrantVectorStore) Upsert(ctx context.Context, chunks []model.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload := map[string]any{
			payloadIDField:   c.ID,
			payloadTextField: c.Text,
			"source_path":    c.Metadata.SourcePath,
			"stage":          string(c.Metadata.Stage),
			"layer":          string(c.Metadata.Layer),
			"category":       c.Metadata.Category,
		}
		vec := make([]float32, len(c.Embedding))
		copy(vec, c.Embedding)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(c.ID)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("vectorindex: qdrant upsert: %w", err)
	}
	return len(chunks), nil
}

func (s *QdrantVectorStore) Delete(ctx context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	n := 0
	for _, id := range chunkIDs {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointUUID(id))),
		})
		if err != nil {
			return n, fmt.Errorf("vectorindex: qdrant delete %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

func (s *QdrantVectorStore) Get(ctx context.Context, chunkID string) (model.Chunk, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointUUID(chunkID))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return model.Chunk{}, fmt.Errorf("vectorindex: qdrant get: %w", err)
	}
	if len(points) == 0 {
		return model.Chunk{}, ErrNotFound
	}
	return chunkFromPayload(chunkID, points[0].GetPayload(), points[0].GetVectors()), nil
}

func (s *QdrantVectorStore) Count(ctx context.Context, filter Filter) (int, error) {
	req := &qdrant.CountPoints{CollectionName: s.collection}
	if !filter.empty() {
		req.Filter = qdrantFilter(filter)
	}
	n, err := s.client.Count(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("vectorindex: qdrant count: %w", err)
	}
	return int(n), nil
}

// ListIDs pages through the collection via Scroll, 1000 points at a
// time, recovering original chunk IDs from payloadIDField the same way
// Search does.
func (s *QdrantVectorStore) ListIDs(ctx context.Context, filter Filter) ([]string, error) {
	var ids []string
	var offset *qdrant.PointId
	limit := uint32(1000)
	for {
		req := &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
			Offset:         offset,
		}
		if !filter.empty() {
			req.Filter = qdrantFilter(filter)
		}
		points, err := s.client.Scroll(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("vectorindex: qdrant scroll: %w", err)
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			id := p.GetId().GetUuid()
			if p.Payload != nil {
				if orig, ok := p.Payload[payloadIDField]; ok {
					id = orig.GetStringValue()
				}
			}
			ids = append(ids, id)
		}
		if uint32(len(points)) < limit {
			break
		}
		offset = points[len(points)-1].GetId()
	}
	return ids, nil
}

func (s *QdrantVectorStore) Search(ctx context.Context, query []float32, k int, filter Filter) ([]ScoredChunk, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(query))
	copy(vec, query)
	limit := uint64(k)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if !filter.empty() {
		req.Filter = qdrantFilter(filter)
	}
	hits, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: qdrant query: %w", err)
	}
	out := make([]ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		id := hit.GetId().GetUuid()
		if hit.Payload != nil {
			if orig, ok := hit.Payload[payloadIDField]; ok {
				id = orig.GetStringValue()
			}
		}
		out = append(out, ScoredChunk{ChunkID: id, Score: float64(hit.GetScore())})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out, nil
}

func (s *QdrantVectorStore) Close() error { return s.client.Close() }

func chunkFromPayload(fallbackID string, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) model.Chunk {
	c := model.Chunk{ID: fallbackID}
	if payload != nil {
		if v, ok := payload[payloadIDField]; ok {
			c.ID = v.GetStringValue()
		}
		c.Text = payload[payloadTextField].GetStringValue()
		c.Metadata.SourcePath = payload["source_path"].GetStringValue()
		c.Metadata.Stage = model.Stage(payload["stage"].GetStringValue())
		c.Metadata.Layer = model.Layer(payload["layer"].GetStringValue())
		c.Metadata.Category = payload["category"].GetStringValue()
	}
	if vectors != nil && vectors.GetVector() != nil {
		c.Embedding = vectors.GetVector().GetData()
	}
	return c
}

func qdrantFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.Stage != "" {
		must = append(must, qdrant.NewMatch("stage", f.Stage))
	}
	if f.Layer != "" {
		must = append(must, qdrant.NewMatch("layer", f.Layer))
	}
	if f.Category != "" {
		must = append(must, qdrant.NewMatch("category", f.Category))
	}
	for k, v := range f.Tags {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: must}
}
