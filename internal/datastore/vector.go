package datastore

import (
	"encoding/binary"
	"math"

	"github.com/tphakala/echofind/internal/errors"
)

// EncodeVector packs a float64 vector into a little-endian blob for storage.
func EncodeVector(vector []float64) []byte {
	blob := make([]byte, 8*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, errors.Newf("vector blob length %d is not a multiple of 8", len(blob)).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	vector := make([]float64, len(blob)/8)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return vector, nil
}
