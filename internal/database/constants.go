package database

// HNSW index parameters for identity embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so that removed or excluded keys can be filtered out afterwards.
	HNSWSearchMultiplier = 3
)

// Listing limits
const (
	// DefaultHistoryLimit is how many search history rows are returned by default
	DefaultHistoryLimit = 100

	// MaxHistoryLimit caps any client-supplied limit
	MaxHistoryLimit = 1000
)
