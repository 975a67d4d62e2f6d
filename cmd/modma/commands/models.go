package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/modma/internal/model"
)

func newModelsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage model artifacts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Download missing artifacts and validate the set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			manager := model.NewManager()
			loadErr := manager.LoadFromConfig(cmd.Context(), cfg)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILE\tSOURCE\tSTATUS\tCACHED\tERROR")
			for _, a := range manager.Registry().List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", a.ID, a.File, a.Source, a.Status, a.Cached, a.Error)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			return loadErr
		},
	})

	return cmd
}
