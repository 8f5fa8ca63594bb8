// Package embedding defines the embedding producer and corpus accessor contracts.
//
// The engine never computes embeddings itself; an injected Producer turns audio
// into fixed-length vectors and a Corpus enumerates and serves the precomputed
// vectors of the indexed clip collection.
package embedding

import "context"

// ScopeFilter restricts corpus enumeration to a subset of datasets or recordings.
// Empty slices mean no restriction on that axis.
type ScopeFilter struct {
	DatasetIDs   []uint
	RecordingIDs []uint
}

// Corpus provides read-only access to the embedding-indexed clip collection.
type Corpus interface {
	// List enumerates candidate clip ids matching the filter.
	List(ctx context.Context, filter ScopeFilter) ([]uint, error)
	// Embedding fetches the stored vector for one clip.
	Embedding(ctx context.Context, id uint) ([]float64, error)
	// Dimension reports the vector dimensionality shared by all stored clips.
	Dimension() int
}
