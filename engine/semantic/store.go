package semantic

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kk32340/SampleMLCode/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// tieSlack is how many extra hits a query fetches so that ties at the k-th
// score can be reordered by insertion sequence.
const tieSlack = 16

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

type collectionsAPI interface {
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is a Qdrant-backed index with the same contract as MemoryIndex.
// The dimension of an existing collection is read from Qdrant on first use,
// so several processes can share one collection. A missing collection is
// created on first insert (or by EnsureCollection) and dropped by Clear.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string

	mu  sync.RWMutex
	dim int
	seq atomic.Int64
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	vs := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection)
	vs.conn = conn
	return vs, nil
}

// NewWithClients builds a VectorStore over existing clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *VectorStore {
	vs := &VectorStore{points: points, collections: collections, collection: collection}
	vs.seq.Store(time.Now().UnixNano())
	return vs
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// Dimension returns the established vector size, or 0 while no collection
// is known.
func (v *VectorStore) Dimension() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dim
}

// EnsureCollection creates the collection if it doesn't exist. An existing
// collection must already have dims-sized vectors.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ensureLocked(ctx, dims)
}

func (v *VectorStore) ensureLocked(ctx context.Context, dims int) error {
	if dims <= 0 {
		return domain.InvalidConfig("dims", dims)
	}
	if err := v.loadLocked(ctx); err != nil {
		return err
	}
	if v.dim != 0 {
		if v.dim != dims {
			return &domain.DimensionError{Expected: v.dim, Got: dims}
		}
		return nil
	}

	_, err := v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
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
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}

	// Zero-vector queries scroll by insertion sequence, which needs an index.
	wait := true
	fieldType := pb.FieldType_FieldTypeInteger
	_, err = v.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: v.collection,
		Wait:           &wait,
		FieldName:      payloadSeq,
		FieldType:      &fieldType,
	})
	if err != nil {
		return fmt.Errorf("semantic: index %s on %s: %w", payloadSeq, v.collection, err)
	}
	v.dim = dims
	return nil
}

// load is loadLocked for callers that don't hold the lock.
func (v *VectorStore) load(ctx context.Context) error {
	v.mu.RLock()
	known := v.dim != 0
	v.mu.RUnlock()
	if known {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadLocked(ctx)
}

// loadLocked reads the vector size of an existing collection into v.dim.
// It leaves v.dim at 0 when the collection doesn't exist.
func (v *VectorStore) loadLocked(ctx context.Context) error {
	if v.dim != 0 {
		return nil
	}
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	if !slices.ContainsFunc(list.GetCollections(), func(c *pb.CollectionDescription) bool {
		return c.GetName() == v.collection
	}) {
		return nil
	}

	info, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
	if err != nil {
		return fmt.Errorf("semantic: get collection %s: %w", v.collection, err)
	}
	size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size == 0 {
		return fmt.Errorf("semantic: collection %s has no single unnamed vector: %w", v.collection, domain.ErrInvalidConfiguration)
	}
	v.dim = int(size)
	return nil
}

// checkLocked loads the collection dimension and validates records against
// it. When no collection exists yet the first record sets the dimension.
func (v *VectorStore) checkLocked(ctx context.Context, records []domain.Record) (int, error) {
	if err := v.loadLocked(ctx); err != nil {
		return 0, err
	}
	dim := v.dim
	if dim == 0 {
		dim = len(records[0].Embedding)
	}
	for i, r := range records {
		if len(r.Embedding) == 0 {
			return 0, domain.InvalidArg("embedding", i)
		}
		if len(r.Embedding) != dim {
			return 0, &domain.DimensionError{Expected: dim, Got: len(r.Embedding)}
		}
	}
	return dim, nil
}

// Insert upserts records. Point ids derive from document id and chunk index,
// so re-inserting the same chunk overwrites it.
func (v *VectorStore) Insert(ctx context.Context, records []domain.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	dim, err := v.checkLocked(ctx, records)
	if err != nil {
		return nil, err
	}
	if err := v.ensureLocked(ctx, dim); err != nil {
		return nil, err
	}
	return v.upsertLocked(ctx, records)
}

// Replace swaps the chunks of docID for records and returns how many chunks
// the previous version had. Dimensions are checked before anything is
// written. New points are upserted before stale ones are deleted, so the
// document never disappears from concurrent queries.
func (v *VectorStore) Replace(ctx context.Context, docID string, records []domain.Record) (int, error) {
	if err := checkOwner(docID, records); err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if len(records) > 0 {
		dim, err := v.checkLocked(ctx, records)
		if err != nil {
			return 0, err
		}
		if err := v.ensureLocked(ctx, dim); err != nil {
			return 0, err
		}
	} else if err := v.loadLocked(ctx); err != nil {
		return 0, err
	}
	if v.dim == 0 {
		return 0, nil
	}

	owned := &pb.Filter{Must: []*pb.Condition{fieldMatch(payloadDocID, docID)}}
	previous, err := v.countLocked(ctx, owned)
	if err != nil {
		return 0, err
	}

	ids, err := v.upsertLocked(ctx, records)
	if err != nil {
		return 0, err
	}
	if previous == 0 {
		return 0, nil
	}

	stale := &pb.Filter{Must: owned.Must}
	if len(ids) > 0 {
		stale.MustNot = []*pb.Condition{hasID(ids)}
	}
	if err := v.deleteLocked(ctx, stale); err != nil {
		return 0, fmt.Errorf("semantic: replace %s: %w", docID, err)
	}
	return previous, nil
}

func (v *VectorStore) upsertLocked(ctx context.Context, records []domain.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	ids := make([]string, len(records))
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		ids[i] = PointID(r.Chunk.DocID, r.Chunk.Index)
		payload := r.Chunk.Metadata.Clone()
		payload[payloadContent] = r.Chunk.Text
		payload[payloadDocID] = r.Chunk.DocID
		payload[payloadSeq] = v.seq.Add(1)

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: ids[i]},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: toPayload(payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return ids, nil
}

// PointID is the deterministic Qdrant point id of a chunk.
func PointID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", docID, index))).String()
}

// DeleteByDocument removes all points matching a doc_id.
func (v *VectorStore) DeleteByDocument(ctx context.Context, docID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.loadLocked(ctx); err != nil {
		return 0, err
	}
	if v.dim == 0 {
		return 0, nil
	}

	filter := &pb.Filter{Must: []*pb.Condition{fieldMatch(payloadDocID, docID)}}
	n, err := v.countLocked(ctx, filter)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := v.deleteLocked(ctx, filter); err != nil {
		return 0, fmt.Errorf("semantic: delete by doc_id %s: %w", docID, err)
	}
	return n, nil
}

func (v *VectorStore) deleteLocked(ctx context.Context, filter *pb.Filter) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	return err
}

type hit struct {
	res domain.ScoredResult
	seq int64
}

// Query performs k-NN similarity search. Qdrant selects the candidates;
// scores are recomputed in double precision from the returned vectors and
// equal scores are ordered by insertion sequence. A zero query vector scores
// 0 against everything, so it returns the k earliest chunks.
func (v *VectorStore) Query(ctx context.Context, vec []float32, k int) ([]domain.ScoredResult, error) {
	if err := domain.ValidateK(k); err != nil {
		return nil, err
	}
	if err := v.load(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.dim == 0 {
		return []domain.ScoredResult{}, nil
	}
	if len(vec) != v.dim {
		return nil, &domain.DimensionError{Expected: v.dim, Got: len(vec)}
	}

	qn := norm(vec)
	if qn == 0 {
		return v.earliestLocked(ctx, k)
	}

	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vec,
		Limit:          uint64(k + tieSlack),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = toHit(r.GetId(), r.GetPayload())
		if pv := pointVector(r.GetVectors()); len(pv) == len(vec) {
			hits[i].res.Score = cosine(vec, pv, qn, norm(pv))
		} else {
			hits[i].res.Score = float64(r.GetScore())
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.res.Score, a.res.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return topK(hits, k), nil
}

// earliestLocked returns the k points with the lowest insertion sequence,
// all scored 0.
func (v *VectorStore) earliestLocked(ctx context.Context, k int) ([]domain.ScoredResult, error) {
	limit := uint32(k)
	asc := pb.Direction_Asc
	resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: v.collection,
		Limit:          &limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		OrderBy:        &pb.OrderBy{Key: payloadSeq, Direction: &asc},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: scroll: %w", err)
	}
	hits := make([]hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = toHit(r.GetId(), r.GetPayload())
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(a.seq, b.seq) })
	return topK(hits, k), nil
}

func toHit(id *pb.PointId, payload map[string]*pb.Value) hit {
	h := hit{res: domain.ScoredResult{
		ID:       id.GetUuid(),
		Metadata: make(domain.Metadata),
	}}
	for key, val := range payload {
		switch key {
		case payloadContent:
			h.res.Content = val.GetStringValue()
		case payloadSeq:
			h.seq = val.GetIntegerValue()
		default:
			h.res.Metadata[key] = fromValue(val)
		}
	}
	h.res.DocID, _ = h.res.Metadata[payloadDocID].(string)
	return h
}

func topK(hits []hit, k int) []domain.ScoredResult {
	if k > len(hits) {
		k = len(hits)
	}
	out := make([]domain.ScoredResult, k)
	for i := range out {
		out[i] = hits[i].res
	}
	return out
}

// pointVector extracts the dense vector of a returned point.
func pointVector(vs *pb.VectorsOutput) []float32 {
	out := vs.GetVector()
	if d := out.GetDense(); d != nil {
		return d.GetData()
	}
	return out.GetData() //nolint:staticcheck // older servers only fill the flat field
}

// Count returns the exact number of points in the collection.
func (v *VectorStore) Count(ctx context.Context) (int, error) {
	if err := v.load(ctx); err != nil {
		return 0, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.dim == 0 {
		return 0, nil
	}
	return v.countLocked(ctx, nil)
}

func (v *VectorStore) countLocked(ctx context.Context, filter *pb.Filter) (int, error) {
	exact := true
	resp, err := v.points.Count(ctx, &pb.CountPoints{
		CollectionName: v.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Clear deletes the collection and forgets the established dimension.
func (v *VectorStore) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.loadLocked(ctx); err != nil {
		return err
	}
	if v.dim == 0 {
		return nil
	}
	if err := v.deleteCollection(ctx); err != nil {
		return err
	}
	v.dim = 0
	return nil
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.deleteCollection(ctx); err != nil {
		return err
	}
	v.dim = 0
	return nil
}

func (v *VectorStore) deleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", v.collection, err)
	}
	return nil
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

func hasID(ids []string) *pb.Condition {
	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_HasId{HasId: &pb.HasIdCondition{HasId: pids}},
	}
}
