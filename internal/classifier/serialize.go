package classifier

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tphakala/echofind/internal/errors"
)

// artifactVersion guards against decoding blobs written by an incompatible build.
const artifactVersion = 1

// artifact is the wire shape of a serialized classifier.
type artifact struct {
	Version   int       `msgpack:"version"`
	Dimension int       `msgpack:"dimension"`
	Weights   []float64 `msgpack:"weights"`
	Bias      float64   `msgpack:"bias"`
}

// Serialize encodes the trained model into an opaque blob for the model cache.
func (c *SelfTrainingClassifier) Serialize() ([]byte, error) {
	if !c.trained {
		return nil, errors.Newf("cannot serialize an untrained classifier").
			Component("classifier").
			Category(errors.CategoryModelSerialization).
			Build()
	}

	blob, err := msgpack.Marshal(artifact{
		Version:   artifactVersion,
		Dimension: c.dimension,
		Weights:   c.weights,
		Bias:      c.bias,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelSerialization).
			Build()
	}
	return blob, nil
}

// Deserialize restores a classifier from a serialized artifact blob.
func Deserialize(blob []byte) (*SelfTrainingClassifier, error) {
	var a artifact
	if err := msgpack.Unmarshal(blob, &a); err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelSerialization).
			Build()
	}

	if a.Version != artifactVersion {
		return nil, errors.Newf("unsupported classifier artifact version %d", a.Version).
			Component("classifier").
			Category(errors.CategoryModelSerialization).
			Build()
	}
	if len(a.Weights) != a.Dimension {
		return nil, errors.Newf("corrupt classifier artifact: %d weights for dimension %d",
			len(a.Weights), a.Dimension).
			Component("classifier").
			Category(errors.CategoryModelSerialization).
			Build()
	}

	c := New()
	c.weights = a.Weights
	c.bias = a.Bias
	c.dimension = a.Dimension
	c.trained = true
	return c, nil
}
