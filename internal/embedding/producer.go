package embedding

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/errors"
	tflite "github.com/tphakala/go-tflite"
)

// Producer turns an audio segment into a fixed-length embedding vector.
type Producer interface {
	// Embed computes the embedding for one audio segment of PCM samples.
	Embed(ctx context.Context, samples []float32) ([]float64, error)
	// Dimension reports the length of the vectors this producer emits.
	Dimension() int
}

// TFLiteProducer runs a TensorFlow Lite embedding model over audio segments.
type TFLiteProducer struct {
	interpreter *tflite.Interpreter
	model       *tflite.Model
	settings    *conf.Settings
	dimension   int
	mu          sync.Mutex
	// Pre-allocated buffer for embeddings to reduce allocations
	outputBuffer []float32
}

// NewTFLiteProducer loads the embedding model from settings and prepares an interpreter.
func NewTFLiteProducer(settings *conf.Settings) (*TFLiteProducer, error) {
	start := time.Now()

	modelPath := settings.Embedding.ModelPath
	if modelPath == "" {
		return nil, errors.Newf("no embedding model path configured").
			Component("embedding").
			Category(errors.CategoryConfiguration).
			Build()
	}

	modelData, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("embedding").
			Category(errors.CategoryModelLoad).
			ModelContext(modelPath, "").
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("embedding").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, "").
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	if settings.Embedding.Threads > 0 {
		options.SetNumThread(settings.Embedding.Threads)
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.New(fmt.Errorf("cannot create interpreter")).
			Component("embedding").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, "").
			Build()
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("tensor allocation failed")).
			Component("embedding").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, "").
			Build()
	}

	outputTensor := interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		interpreter.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("cannot get output tensor")).
			Component("embedding").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, "").
			Build()
	}

	dimension := len(outputTensor.Float32s())
	if settings.Embedding.Dimension > 0 && dimension != settings.Embedding.Dimension {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("model emits %d-dimensional embeddings, configuration expects %d",
			dimension, settings.Embedding.Dimension).
			Component("embedding").
			Category(errors.CategoryDimensionMismatch).
			ModelContext(modelPath, "").
			Build()
	}

	return &TFLiteProducer{
		interpreter:  interpreter,
		model:        model,
		settings:     settings,
		dimension:    dimension,
		outputBuffer: make([]float32, dimension),
	}, nil
}

// Embed computes the embedding for one audio segment.
func (p *TFLiteProducer) Embed(ctx context.Context, samples []float32) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Lock to prevent concurrent access to the interpreter
	p.mu.Lock()
	defer p.mu.Unlock()

	inputTensor := p.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, errors.Newf("cannot get input tensor").
			Component("embedding").
			Category(errors.CategoryModelInit).
			Build()
	}

	input := inputTensor.Float32s()
	if len(samples) != len(input) {
		return nil, errors.Newf("segment has %d samples, model expects %d", len(samples), len(input)).
			Component("embedding").
			Category(errors.CategoryValidation).
			Build()
	}
	copy(input, samples)

	if status := p.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component("embedding").
			Category(errors.CategoryModelInit).
			Build()
	}

	outputTensor := p.interpreter.GetOutputTensor(0)
	copy(p.outputBuffer, outputTensor.Float32s())

	vector := make([]float64, p.dimension)
	for i, v := range p.outputBuffer {
		vector[i] = float64(v)
	}
	return vector, nil
}

// Dimension reports the embedding dimensionality of the loaded model.
func (p *TFLiteProducer) Dimension() int {
	return p.dimension
}

// Close releases the interpreter and model resources.
func (p *TFLiteProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interpreter != nil {
		p.interpreter.Delete()
		p.interpreter = nil
	}
	if p.model != nil {
		p.model.Delete()
		p.model = nil
	}
}
