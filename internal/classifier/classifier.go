// Package classifier implements the self-training semi-supervised classifier
// used to re-rank search pools and run standalone inference.
package classifier

import (
	"context"

	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/errors"
)

// Sentinel errors surfaced to the active-learning loop.
var (
	// ErrInsufficientData means the labeled set does not meet the minimum
	// positive/negative counts. Recoverable: the user labels more items.
	ErrInsufficientData = errors.NewStd("insufficient training data")
	// ErrTrainingFailed means the fit did not converge numerically.
	ErrTrainingFailed = errors.NewStd("training failed")
)

// Config holds training hyperparameters.
type Config struct {
	MinPositive         int     // minimum positive examples required
	MinNegative         int     // minimum negative examples required
	ConfidenceThreshold float64 // pseudo-label probability cutoff, conservative by default
	MaxRounds           int     // upper bound on self-training rounds
	ValidationRatio     float64 // held-out share of the labeled set
	LearningRate        float64
	Epochs              int
	L2                  float64 // ridge penalty on the weights
	Seed                int64   // shuffle seed for the train/validation split
}

// DefaultConfig returns the conservative defaults used when no settings are loaded.
func DefaultConfig() Config {
	return Config{
		MinPositive:         3,
		MinNegative:         3,
		ConfidenceThreshold: 0.95,
		MaxRounds:           5,
		ValidationRatio:     0.2,
		LearningRate:        0.1,
		Epochs:              200,
		L2:                  1e-4,
		Seed:                1,
	}
}

// ConfigFromSettings maps the loaded application settings onto a training config.
func ConfigFromSettings(s *conf.Settings) Config {
	cfg := DefaultConfig()
	cfg.MinPositive = s.Training.MinPositive
	cfg.MinNegative = s.Training.MinNegative
	cfg.ConfidenceThreshold = s.Training.ConfidenceThreshold
	cfg.MaxRounds = s.Training.MaxRounds
	cfg.ValidationRatio = s.Training.ValidationRatio
	cfg.LearningRate = s.Training.LearningRate
	cfg.Epochs = s.Training.Epochs
	return cfg
}

// TrainingSet carries the embeddings for one training run.
type TrainingSet struct {
	Positive  [][]float64
	Negative  [][]float64
	Unlabeled [][]float64 // pool embeddings available for self-training
}

// ConfusionMatrix counts validation outcomes at the 0.5 decision threshold.
type ConfusionMatrix struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`
}

// Metrics summarizes a completed training run.
type Metrics struct {
	Accuracy          float64         `json:"accuracy"`
	Precision         float64         `json:"precision"`
	Recall            float64         `json:"recall"`
	F1                float64         `json:"f1"`
	Confusion         ConfusionMatrix `json:"confusion"`
	TrainingSamples   int             `json:"training_samples"`
	ValidationSamples int             `json:"validation_samples"`
	PseudoLabeled     int             `json:"pseudo_labeled"`
	Rounds            int             `json:"rounds"`
}

// Model is the trainable classifier contract. A future model family is added
// by providing a second implementation, not by switching on a type enum.
type Model interface {
	// Train fits the model on the labeled embeddings, optionally folding in
	// high-confidence pool samples as pseudo-labels. Respects ctx between
	// self-training rounds.
	Train(ctx context.Context, set TrainingSet, cfg Config) (Metrics, error)
	// Predict returns a calibrated probability in [0, 1].
	Predict(embedding []float64) float64
	// Serialize encodes the trained model into an opaque artifact blob.
	Serialize() ([]byte, error)
}
