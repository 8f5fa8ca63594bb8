// Package corpus implements commands for building the clip embedding index.
package corpus

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/datastore"
	"github.com/tphakala/echofind/internal/embedding"
	"github.com/tphakala/echofind/internal/runtime"
)

// Command creates the corpus command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Build and inspect the clip embedding index",
	}

	cmd.AddCommand(
		importCommand(settings),
		embedCommand(settings),
	)
	return cmd
}

// clipRecord is one line of the JSONL import format.
type clipRecord struct {
	ClipID      uint      `json:"clip_id"`
	DatasetID   uint      `json:"dataset_id"`
	RecordingID uint      `json:"recording_id"`
	Vector      []float64 `json:"vector"`
}

func importCommand(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [embeddings.jsonl]",
		Short: "Import precomputed clip embeddings from a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = file.Close() }()

			imported := 0
			scanner := bufio.NewScanner(file)
			scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
			for scanner.Scan() {
				var record clipRecord
				if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
					return fmt.Errorf("line %d: %w", imported+1, err)
				}
				err := app.Store.SaveClipEmbedding(&datastore.ClipEmbedding{
					ClipID:      record.ClipID,
					DatasetID:   record.DatasetID,
					RecordingID: record.RecordingID,
					Dimension:   len(record.Vector),
					Vector:      datastore.EncodeVector(record.Vector),
				})
				if err != nil {
					return err
				}
				imported++
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d clip embeddings\n", imported)
			return nil
		},
	}
	return cmd
}

func embedCommand(settings *conf.Settings) *cobra.Command {
	var (
		clipID      uint
		datasetID   uint
		recordingID uint
	)

	cmd := &cobra.Command{
		Use:   "embed [samples.f32]",
		Short: "Embed one clip's PCM samples with the configured model and index it",
		Long: `Reads little-endian float32 PCM samples from the given file, runs the
TensorFlow Lite embedding model over them and stores the resulting vector
in the clip index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := readSamples(args[0])
			if err != nil {
				return err
			}

			producer, err := embedding.NewTFLiteProducer(settings)
			if err != nil {
				return err
			}
			defer producer.Close()

			vector, err := producer.Embed(cmd.Context(), samples)
			if err != nil {
				return err
			}

			app, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			err = app.Store.SaveClipEmbedding(&datastore.ClipEmbedding{
				ClipID:      clipID,
				DatasetID:   datasetID,
				RecordingID: recordingID,
				Dimension:   len(vector),
				Vector:      datastore.EncodeVector(vector),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed clip %d (%d dimensions)\n", clipID, len(vector))
			return nil
		},
	}

	cmd.Flags().UintVar(&clipID, "clip", 0, "Clip id to index under")
	cmd.Flags().UintVar(&datasetID, "dataset", 0, "Dataset the clip belongs to")
	cmd.Flags().UintVar(&recordingID, "recording", 0, "Recording the clip was cut from")
	_ = cmd.MarkFlagRequired("clip")
	return cmd
}

// readSamples loads a raw little-endian float32 PCM file.
func readSamples(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: size %d is not a multiple of 4 bytes", path, len(data))
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}
