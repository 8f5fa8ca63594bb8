// Package export implements the annotation project export command.
package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/runtime"
)

// Command creates the export command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		name   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export [session-uuid]",
		Short: "Export a session's labeled results as an annotation project",
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

			if name == "" {
				name = fmt.Sprintf("session-%s", session.UUID)
			}
			project, err := app.Engine.ExportToAnnotationProject(session.ID, name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer func() { _ = file.Close() }()
				out = file
			}

			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(project); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d clips to %s\n", len(project.Clips), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name of the exported project")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the project JSON to a file instead of stdout")
	return cmd
}
