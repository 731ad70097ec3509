package sync

import (
	"context"
	"fmt"
	"sort"
	stdsync "sync"

	"github.com/vsedlak/chatrag/pkg/types"
)

// fakeTextStore is an in-memory TextStore with fault injection.
type fakeTextStore struct {
	mu        stdsync.Mutex
	docs      map[string]*types.Document
	byHash    map[string]string
	chunks    map[string]*types.Chunk
	pingErr   error
	createErr error
}

func newFakeTextStore() *fakeTextStore {
	return &fakeTextStore{
		docs:   make(map[string]*types.Document),
		byHash: make(map[string]string),
		chunks: make(map[string]*types.Chunk),
	}
}

func (f *fakeTextStore) Name() string           { return "fake" }
func (f *fakeTextStore) Init(path string) error { return nil }
func (f *fakeTextStore) Close() error           { return nil }

func (f *fakeTextStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeTextStore) CreateDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byHash[doc.ContentHash]; ok {
		return types.ErrDuplicateDocument
	}
	f.docs[doc.ID] = doc
	f.byHash[doc.ContentHash] = doc.ID
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

func (f *fakeTextStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return doc, nil
}

func (f *fakeTextStore) GetDocumentByHash(ctx context.Context, hash string) (*types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[hash]
	if !ok {
		return nil, types.ErrNotFound
	}
	return f.docs[id], nil
}

func (f *fakeTextStore) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []*types.Document
	for _, d := range f.docs {
		docs = append(docs, d)
	}
	return docs, nil
}

func (f *fakeTextStore) GetChunkByID(ctx context.Context, id string) (*types.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunk, ok := f.chunks[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return chunk, nil
}

func (f *fakeTextStore) GetChunkAt(ctx context.Context, documentID string, chunkIndex int) (*types.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chunks {
		if c.DocumentID == documentID && c.ChunkIndex == chunkIndex {
			return c, nil
		}
	}
	return nil, types.ErrNotFound
}

func (f *fakeTextStore) ListChunkRefs(ctx context.Context) ([]types.ChunkRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []types.ChunkRef
	for _, c := range f.chunks {
		refs = append(refs, types.ChunkRef{ChunkID: c.ID, DocumentID: c.DocumentID, ChunkIndex: c.ChunkIndex})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].DocumentID != refs[j].DocumentID {
			return refs[i].DocumentID < refs[j].DocumentID
		}
		return refs[i].ChunkIndex < refs[j].ChunkIndex
	})
	return refs, nil
}

func (f *fakeTextStore) DeleteDocument(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[documentID]; ok {
		delete(f.byHash, doc.ContentHash)
		delete(f.docs, documentID)
	}
	for id, c := range f.chunks {
		if c.DocumentID == documentID {
			delete(f.chunks, id)
		}
	}
	return nil
}

func (f *fakeTextStore) Counts(ctx context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs), len(f.chunks), nil
}

// removeChunk drops a chunk row behind the coordinator's back, simulating
// text-side drift.
func (f *fakeTextStore) removeChunk(documentID string, chunkIndex int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.chunks {
		if c.DocumentID == documentID && c.ChunkIndex == chunkIndex {
			delete(f.chunks, id)
		}
	}
}

// fakeVectorStore is an in-memory VectorStore with per-index fault
// injection on inserts.
type fakeVectorStore struct {
	mu          stdsync.Mutex
	records     map[int64]*types.VectorRecord
	pingErr     error
	failIndexes map[int]bool // chunk indexes whose insert fails
	failAll     bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		records:     make(map[int64]*types.VectorRecord),
		failIndexes: make(map[int]bool),
	}
}

func (f *fakeVectorStore) Name() string                           { return "fake" }
func (f *fakeVectorStore) Init(path string, dimensions int) error { return nil }
func (f *fakeVectorStore) Close() error                           { return nil }
func (f *fakeVectorStore) Ping(ctx context.Context) error         { return f.pingErr }

func (f *fakeVectorStore) Insert(ctx context.Context, records []*types.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return fmt.Errorf("injected insert failure")
	}
	for _, rec := range records {
		if f.failIndexes[rec.ChunkIndex] {
			return fmt.Errorf("injected insert failure at index %d", rec.ChunkIndex)
		}
	}
	for _, rec := range records {
		f.records[rec.ID] = rec
	}
	return nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, query []float32, topK int) ([]types.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []types.VectorHit
	for id, rec := range f.records {
		var dist float64
		for i := range query {
			if i < len(rec.Embedding) {
				d := float64(query[i] - rec.Embedding[i])
				dist += d * d
			}
		}
		hits = append(hits, types.VectorHit{
			ID:         id,
			DocumentID: rec.DocumentID,
			ChunkIndex: rec.ChunkIndex,
			Distance:   dist,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (f *fakeVectorStore) ListIDs(ctx context.Context) (map[types.PairKey]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[types.PairKey]int64)
	for id, rec := range f.records {
		ids[types.PairKey{DocumentID: rec.DocumentID, ChunkIndex: rec.ChunkIndex}] = id
	}
	return ids, nil
}

func (f *fakeVectorStore) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

// addOrphan inserts a vector with no text-store counterpart.
func (f *fakeVectorStore) addOrphan(id int64, documentID string, chunkIndex int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id] = &types.VectorRecord{
		ID:         id,
		Embedding:  []float32{0, 0, 0},
		DocumentID: documentID,
		ChunkIndex: chunkIndex,
	}
}

// fakeEmbedder returns deterministic embeddings. When block is set, Embed
// signals started and then waits until block is closed, so tests can hold
// a resync in flight.
type fakeEmbedder struct {
	dims    int
	failAll bool
	block   chan struct{}
	started chan struct{}
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{dims: 3, started: make(chan struct{}, 8)}
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.block != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failAll {
		return nil, types.ErrEmbeddingFailed
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dims)
		for j := range vec {
			vec[j] = float32((len(text)+i+j)%7) / 7
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) Close() error    { return nil }
