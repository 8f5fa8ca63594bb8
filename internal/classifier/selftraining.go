package classifier

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/echofind/internal/errors"
	"github.com/tphakala/echofind/internal/logging"
)

// SelfTrainingClassifier is a logistic model fit by gradient descent, extended
// with self-training: after the base fit, pool samples the model scores with
// high confidence are folded back in as pseudo-labeled examples for a refit.
type SelfTrainingClassifier struct {
	weights   []float64
	bias      float64
	dimension int
	trained   bool
	log       *slog.Logger
}

// New creates an untrained classifier.
func New() *SelfTrainingClassifier {
	log := logging.ForService("classifier")
	if log == nil {
		log = slog.Default().With("service", "classifier")
	}
	return &SelfTrainingClassifier{log: log}
}

type sample struct {
	x []float64
	y float64
}

// Train fits the classifier per the config. The context is checked between
// self-training rounds so a cancelled run stops promptly and produces no model.
func (c *SelfTrainingClassifier) Train(ctx context.Context, set TrainingSet, cfg Config) (Metrics, error) {
	if len(set.Positive) < cfg.MinPositive || len(set.Negative) < cfg.MinNegative {
		return Metrics{}, errors.Newf("%w: have %d positive / %d negative, need %d / %d",
			ErrInsufficientData, len(set.Positive), len(set.Negative), cfg.MinPositive, cfg.MinNegative).
			Component("classifier").
			Category(errors.CategoryInsufficientData).
			Build()
	}

	dim, err := commonDimension(set)
	if err != nil {
		return Metrics{}, err
	}

	start := time.Now()

	// Stratified split keeps both classes represented on each side.
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible split, not crypto
	trainPos, valPos := splitClass(set.Positive, cfg.ValidationRatio, rng)
	trainNeg, valNeg := splitClass(set.Negative, cfg.ValidationRatio, rng)

	train := make([]sample, 0, len(trainPos)+len(trainNeg))
	for _, x := range trainPos {
		train = append(train, sample{x: x, y: 1})
	}
	for _, x := range trainNeg {
		train = append(train, sample{x: x, y: 0})
	}

	c.dimension = dim
	if err := c.fit(train, cfg); err != nil {
		c.trained = false
		return Metrics{}, err
	}

	// Self-training rounds. pseudo[i] records the assigned pseudo-label for
	// unlabeled sample i: 0 unused, +1 positive, -1 negative.
	pseudo := make([]int8, len(set.Unlabeled))
	pseudoCount := 0
	rounds := 0

	for round := 0; round < cfg.MaxRounds && len(set.Unlabeled) > 0; round++ {
		if err := ctx.Err(); err != nil {
			c.trained = false
			return Metrics{}, errors.New(err).
				Component("classifier").
				Category(errors.CategoryCancellation).
				Context("round", round).
				Build()
		}

		added := 0
		for i, x := range set.Unlabeled {
			if pseudo[i] != 0 {
				continue
			}
			p := c.Predict(x)
			switch {
			case p >= cfg.ConfidenceThreshold:
				pseudo[i] = 1
				added++
			case p <= 1-cfg.ConfidenceThreshold:
				pseudo[i] = -1
				added++
			}
		}

		if added == 0 {
			break
		}
		pseudoCount += added
		rounds++

		augmented := make([]sample, len(train), len(train)+pseudoCount)
		copy(augmented, train)
		for i, label := range pseudo {
			switch label {
			case 1:
				augmented = append(augmented, sample{x: set.Unlabeled[i], y: 1})
			case -1:
				augmented = append(augmented, sample{x: set.Unlabeled[i], y: 0})
			}
		}

		if err := c.fit(augmented, cfg); err != nil {
			c.trained = false
			return Metrics{}, err
		}
	}

	c.trained = true

	validation := make([]sample, 0, len(valPos)+len(valNeg))
	for _, x := range valPos {
		validation = append(validation, sample{x: x, y: 1})
	}
	for _, x := range valNeg {
		validation = append(validation, sample{x: x, y: 0})
	}

	// With a tiny labeled set the held-out side can be empty; fall back to
	// the training samples so metrics are always defined.
	evalSet := validation
	if len(evalSet) == 0 {
		evalSet = train
	}

	metrics := c.evaluate(evalSet)
	metrics.TrainingSamples = len(set.Positive) + len(set.Negative)
	metrics.ValidationSamples = len(validation)
	metrics.PseudoLabeled = pseudoCount
	metrics.Rounds = rounds

	c.log.Info("training completed",
		"training_samples", metrics.TrainingSamples,
		"validation_samples", metrics.ValidationSamples,
		"pseudo_labeled", pseudoCount,
		"rounds", rounds,
		"f1", metrics.F1,
		"duration_ms", time.Since(start).Milliseconds())

	return metrics, nil
}

// fit runs full-batch gradient descent on the logistic loss.
func (c *SelfTrainingClassifier) fit(samples []sample, cfg Config) error {
	c.weights = make([]float64, c.dimension)
	c.bias = 0

	grad := make([]float64, c.dimension)
	n := float64(len(samples))

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for i := range grad {
			grad[i] = 0
		}
		gradBias := 0.0

		for i := range samples {
			p := sigmoid(floats.Dot(c.weights, samples[i].x) + c.bias)
			diff := p - samples[i].y
			floats.AddScaled(grad, diff, samples[i].x)
			gradBias += diff
		}

		floats.Scale(1/n, grad)
		if cfg.L2 > 0 {
			floats.AddScaled(grad, cfg.L2, c.weights)
		}

		floats.AddScaled(c.weights, -cfg.LearningRate, grad)
		c.bias -= cfg.LearningRate * gradBias / n
	}

	for _, w := range c.weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return errors.Newf("%w: weights diverged (non-finite values after %d epochs)",
				ErrTrainingFailed, cfg.Epochs).
				Component("classifier").
				Category(errors.CategoryTraining).
				Context("samples", len(samples)).
				Build()
		}
	}
	if math.IsNaN(c.bias) || math.IsInf(c.bias, 0) {
		return errors.Newf("%w: bias diverged", ErrTrainingFailed).
			Component("classifier").
			Category(errors.CategoryTraining).
			Build()
	}

	return nil
}

// Predict returns the calibrated probability that the embedding belongs to the
// target class. The raw margin is always passed through the logistic squashing
// transform, so the result lies in [0, 1] even when margins are unbounded.
func (c *SelfTrainingClassifier) Predict(embedding []float64) float64 {
	if c.weights == nil || len(embedding) != c.dimension {
		return 0
	}
	return sigmoid(floats.Dot(c.weights, embedding) + c.bias)
}

// Trained reports whether the classifier holds a usable fit.
func (c *SelfTrainingClassifier) Trained() bool {
	return c.trained
}

// Dimension reports the embedding dimensionality the model was fit on.
func (c *SelfTrainingClassifier) Dimension() int {
	return c.dimension
}

// evaluate computes metrics at the 0.5 decision threshold.
func (c *SelfTrainingClassifier) evaluate(samples []sample) Metrics {
	var m Metrics
	for i := range samples {
		predicted := c.Predict(samples[i].x) >= 0.5
		actual := samples[i].y == 1
		switch {
		case predicted && actual:
			m.Confusion.TruePositive++
		case predicted && !actual:
			m.Confusion.FalsePositive++
		case !predicted && !actual:
			m.Confusion.TrueNegative++
		default:
			m.Confusion.FalseNegative++
		}
	}

	total := len(samples)
	if total > 0 {
		m.Accuracy = float64(m.Confusion.TruePositive+m.Confusion.TrueNegative) / float64(total)
	}
	if denom := m.Confusion.TruePositive + m.Confusion.FalsePositive; denom > 0 {
		m.Precision = float64(m.Confusion.TruePositive) / float64(denom)
	}
	if denom := m.Confusion.TruePositive + m.Confusion.FalseNegative; denom > 0 {
		m.Recall = float64(m.Confusion.TruePositive) / float64(denom)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// commonDimension validates that every embedding in the set shares one
// nonzero dimensionality.
func commonDimension(set TrainingSet) (int, error) {
	dim := 0
	check := func(groups ...[][]float64) error {
		for _, group := range groups {
			for _, x := range group {
				if dim == 0 {
					dim = len(x)
				}
				if len(x) == 0 || len(x) != dim {
					return errors.Newf("training embeddings disagree on dimensionality: %d vs %d",
						dim, len(x)).
						Component("classifier").
						Category(errors.CategoryDimensionMismatch).
						Build()
				}
			}
		}
		return nil
	}
	if err := check(set.Positive, set.Negative, set.Unlabeled); err != nil {
		return 0, err
	}
	return dim, nil
}

// splitClass shuffles one class and holds out the validation share.
func splitClass(xs [][]float64, ratio float64, rng *rand.Rand) (train, validation [][]float64) {
	shuffled := make([][]float64, len(xs))
	copy(shuffled, xs)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nVal := int(math.Floor(ratio * float64(len(shuffled))))
	// Never hold out the whole class.
	if nVal >= len(shuffled) {
		nVal = len(shuffled) - 1
	}
	if nVal < 0 {
		nVal = 0
	}

	return shuffled[nVal:], shuffled[:nVal]
}

// sigmoid is the monotonic squashing transform mapping margins onto [0, 1].
// Clamping avoids overflow in Exp for extreme margins.
func sigmoid(margin float64) float64 {
	switch {
	case margin > 500:
		return 1
	case margin < -500:
		return 0
	}
	return 1 / (1 + math.Exp(-margin))
}
