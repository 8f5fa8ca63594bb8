package conf

import "fmt"

// ValidateSettings checks settings for values that would break the engine at runtime.
func ValidateSettings(settings *Settings) error {
	if settings.Search.TopK <= 0 {
		return fmt.Errorf("search.topk must be positive, got %d", settings.Search.TopK)
	}
	if settings.Search.MinSimilarity < -1 || settings.Search.MinSimilarity > 1 {
		return fmt.Errorf("search.minsimilarity must be within [-1, 1], got %f", settings.Search.MinSimilarity)
	}
	if settings.Search.BatchSize <= 0 {
		return fmt.Errorf("search.batchsize must be positive, got %d", settings.Search.BatchSize)
	}

	if settings.Training.MinPositive < 1 || settings.Training.MinNegative < 1 {
		return fmt.Errorf("training minimum sample counts must be at least 1, got %d positive / %d negative",
			settings.Training.MinPositive, settings.Training.MinNegative)
	}
	if settings.Training.ConfidenceThreshold <= 0.5 || settings.Training.ConfidenceThreshold > 1 {
		return fmt.Errorf("training.confidencethreshold must be within (0.5, 1], got %f",
			settings.Training.ConfidenceThreshold)
	}
	if settings.Training.ValidationRatio < 0 || settings.Training.ValidationRatio >= 1 {
		return fmt.Errorf("training.validationratio must be within [0, 1), got %f",
			settings.Training.ValidationRatio)
	}
	if settings.Training.MaxRounds < 0 {
		return fmt.Errorf("training.maxrounds must not be negative, got %d", settings.Training.MaxRounds)
	}

	if settings.Tracker.Bins < 2 {
		return fmt.Errorf("tracker.bins must be at least 2, got %d", settings.Tracker.Bins)
	}

	if settings.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.pollinterval must be positive, got %s", settings.Worker.PollInterval)
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return fmt.Errorf("no database output enabled, enable output.sqlite or output.mysql")
	}

	return nil
}
