package domain

// Entry is a single item owned by a vector index: an embedding plus the text
// it was computed from.
type Entry struct {
	Vector   []float32
	Text     string
	Metadata map[string]string
	Tenant   string
}

// SearchQuery describes a nearest-neighbour lookup.
// An empty Tenant searches the whole index.
type SearchQuery struct {
	Vector []float32
	K      int
	Tenant string
}

// SearchResult is one ranked hit. Distance is the raw squared Euclidean
// distance; smaller means more similar.
type SearchResult struct {
	Text     string            `json:"text"`
	Distance float64           `json:"distance"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Answer is the outcome of a grounded question.
// Sources[i] and Scores[i] describe the same candidate.
type Answer struct {
	Answer  string    `json:"answer"`
	Context string    `json:"context"`
	Sources []string  `json:"sources"`
	Scores  []float64 `json:"scores"`
}

// Metadata keys written by the ingest pipeline.
const (
	MetaSource = "source"
	MetaChunk  = "chunk"
)
