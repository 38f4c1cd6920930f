package facematch

import (
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/facewatch/internal/database"
)

// NeighbourIndex wraps an HNSW graph over identity embeddings. It answers
// "which enrolled identities look like this one" for duplicate detection.
// The authoritative identify decision never goes through it: Engine scans
// the full snapshot.
type NeighbourIndex struct {
	graph      *hnsw.Graph[string]
	identities map[string]*database.Identity // exactly the keys held by graph
	dim        int
	mu         sync.RWMutex
}

// NewNeighbourIndex creates a new empty index.
func NewNeighbourIndex() *NeighbourIndex {
	return &NeighbourIndex{
		identities: make(map[string]*database.Identity),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = database.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(database.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given identities.
func (h *NeighbourIndex) Build(identities []database.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.dim = 0
	h.identities = make(map[string]*database.Identity, len(identities))

	for i := range identities {
		h.addLocked(&identities[i])
	}
}

// Add inserts or replaces a single identity.
func (h *NeighbourIndex) Add(identity database.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.identities[identity.ID]; ok {
		delete(h.identities, identity.ID)
		h.rebuildLocked()
	}
	h.addLocked(&identity)
}

func (h *NeighbourIndex) addLocked(identity *database.Identity) {
	if len(identity.Embedding) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
		h.dim = len(identity.Embedding)
	}
	if len(identity.Embedding) != h.dim {
		return
	}
	h.graph.Add(hnsw.MakeNode(identity.ID, identity.Embedding))
	h.identities[identity.ID] = identity
}

// Delete removes an identity from the index.
func (h *NeighbourIndex) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.identities[id]; !ok {
		return
	}
	delete(h.identities, id)
	h.rebuildLocked()
}

// rebuildLocked recreates the graph from h.identities. Removals never go
// through hnsw.Graph.Delete: it can leave an upper layer without an entry
// node, and re-adding a key still present in the graph panics.
func (h *NeighbourIndex) rebuildLocked() {
	live := h.identities
	h.graph = nil
	h.dim = 0
	h.identities = make(map[string]*database.Identity, len(live))
	for _, id := range slices.Sorted(maps.Keys(live)) {
		h.addLocked(live[id])
	}
}

// Search returns up to k live identities nearest to query, closest first.
// The identity with key exclude (if any) is left out.
func (h *NeighbourIndex) Search(query []float32, k int, exclude string) []Neighbour {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || k <= 0 || len(query) != h.dim {
		return nil
	}

	candidates := h.graph.Search(query, k*database.HNSWSearchMultiplier+1)

	results := make([]Neighbour, 0, k)
	for _, n := range candidates {
		if n.Key == exclude {
			continue
		}
		identity, ok := h.identities[n.Key]
		if !ok {
			continue
		}
		dist := CosineDistance(query, identity.Embedding)
		results = append(results, Neighbour{
			Identity:   *identity,
			Distance:   dist,
			Similarity: 1 - dist,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Get returns the indexed identity for a key.
func (h *NeighbourIndex) Get(id string) (database.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	identity, ok := h.identities[id]
	if !ok {
		return database.Identity{}, false
	}
	return *identity, true
}

// Count returns the number of live identities.
func (h *NeighbourIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities)
}
