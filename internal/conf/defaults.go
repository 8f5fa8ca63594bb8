package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers the default value of every configuration parameter
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main settings
	viper.SetDefault("main.name", "EchoFind")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/echofind.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10*1024*1024)

	// Search settings
	viper.SetDefault("search.topk", 100)
	viper.SetDefault("search.minsimilarity", 0.5)
	viper.SetDefault("search.batchsize", 12)

	// Training settings
	viper.SetDefault("training.minpositive", 3)
	viper.SetDefault("training.minnegative", 3)
	viper.SetDefault("training.confidencethreshold", 0.95)
	viper.SetDefault("training.maxrounds", 5)
	viper.SetDefault("training.validationratio", 0.2)
	viper.SetDefault("training.learningrate", 0.1)
	viper.SetDefault("training.epochs", 200)

	// Score distribution tracker
	viper.SetDefault("tracker.bins", 20)

	// Background workers
	viper.SetDefault("worker.pollinterval", 5*time.Second)
	viper.SetDefault("worker.maxconcurrent", 1)
	viper.SetDefault("worker.jobtimeout", 30*time.Minute)

	// Embedding producer
	viper.SetDefault("embedding.modelpath", "")
	viper.SetDefault("embedding.dimension", 1024)
	viper.SetDefault("embedding.threads", 0)

	// Output settings
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "echofind.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "echofind")
	viper.SetDefault("output.mysql.password", "echofind")
	viper.SetDefault("output.mysql.database", "echofind")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
}
