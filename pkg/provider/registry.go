package provider

import (
	"fmt"
	"sync"
)

// EmbeddingFactory creates an EmbeddingProvider from configuration.
type EmbeddingFactory func(config EmbeddingConfig) (EmbeddingProvider, error)

// TextStoreFactory creates a TextStore.
type TextStoreFactory func() (TextStore, error)

// VectorStoreFactory creates a VectorStore.
type VectorStoreFactory func() (VectorStore, error)

// ChunkerFactory creates a Chunker from configuration.
type ChunkerFactory func(config ChunkingConfig) (Chunker, error)

// Registry holds factories for all provider types.
type Registry struct {
	mu sync.RWMutex

	embeddingFactories   map[string]EmbeddingFactory
	textStoreFactories   map[string]TextStoreFactory
	vectorStoreFactories map[string]VectorStoreFactory
	chunkerFactories     map[string]ChunkerFactory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		embeddingFactories:   make(map[string]EmbeddingFactory),
		textStoreFactories:   make(map[string]TextStoreFactory),
		vectorStoreFactories: make(map[string]VectorStoreFactory),
		chunkerFactories:     make(map[string]ChunkerFactory),
	}
}

// RegisterEmbedding registers an embedding provider factory.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingFactories[name] = factory
}

// RegisterTextStore registers a text store factory.
func (r *Registry) RegisterTextStore(name string, factory TextStoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textStoreFactories[name] = factory
}

// RegisterVectorStore registers a vector store factory.
func (r *Registry) RegisterVectorStore(name string, factory VectorStoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorStoreFactories[name] = factory
}

// RegisterChunker registers a chunking strategy factory.
func (r *Registry) RegisterChunker(name string, factory ChunkerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkerFactories[name] = factory
}

// CreateEmbedding creates an embedding provider by name.
func (r *Registry) CreateEmbedding(name string, config EmbeddingConfig) (EmbeddingProvider, error) {
	r.mu.RLock()
	factory, ok := r.embeddingFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s (available: %v)", name, r.ListEmbeddings())
	}
	return factory(config)
}

// CreateTextStore creates a text store by name.
func (r *Registry) CreateTextStore(name string) (TextStore, error) {
	r.mu.RLock()
	factory, ok := r.textStoreFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown text store: %s (available: %v)", name, r.ListTextStores())
	}
	return factory()
}

// CreateVectorStore creates a vector store by name.
func (r *Registry) CreateVectorStore(name string) (VectorStore, error) {
	r.mu.RLock()
	factory, ok := r.vectorStoreFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown vector store: %s (available: %v)", name, r.ListVectorStores())
	}
	return factory()
}

// CreateChunker creates a chunking strategy by name.
func (r *Registry) CreateChunker(name string, config ChunkingConfig) (Chunker, error) {
	r.mu.RLock()
	factory, ok := r.chunkerFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown chunking strategy: %s (available: %v)", name, r.ListChunkers())
	}
	return factory(config)
}

// ListEmbeddings returns registered embedding provider names.
func (r *Registry) ListEmbeddings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.embeddingFactories))
	for name := range r.embeddingFactories {
		names = append(names, name)
	}
	return names
}

// ListTextStores returns registered text store names.
func (r *Registry) ListTextStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.textStoreFactories))
	for name := range r.textStoreFactories {
		names = append(names, name)
	}
	return names
}

// ListVectorStores returns registered vector store names.
func (r *Registry) ListVectorStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.vectorStoreFactories))
	for name := range r.vectorStoreFactories {
		names = append(names, name)
	}
	return names
}

// ListChunkers returns registered chunking strategy names.
func (r *Registry) ListChunkers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.chunkerFactories))
	for name := range r.chunkerFactories {
		names = append(names, name)
	}
	return names
}
