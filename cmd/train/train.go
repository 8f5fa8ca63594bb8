// Package train implements the training iteration command.
package train

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/runtime"
)

// Command creates the train command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train [session-uuid]",
		Short: "Run one training iteration for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			session, err := app.Store.GetSessionByUUID(args[0])
			if err != nil {
				return err
			}

			metrics, err := app.Engine.TrainIteration(cmd.Context(), session.ID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"iteration %d trained: accuracy %.3f, precision %.3f, recall %.3f, f1 %.3f (%d train / %d validation, %d pseudo-labeled)\n",
				session.Iteration+1,
				metrics.Accuracy, metrics.Precision, metrics.Recall, metrics.F1,
				metrics.TrainingSamples, metrics.ValidationSamples, metrics.PseudoLabeled)
			return nil
		},
	}
	return cmd
}
