package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/modma/internal/preprocess"
	"github.com/ekisa-team/modma/internal/storage"
	"github.com/ekisa-team/modma/internal/xfs"
)

func newPreprocessCommand(flags *globalFlags) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "preprocess <file>",
		Short: "Convert a raw EGI recording into an epoch archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Storage.ProcessedDir
			}

			out, err := storage.NewLocal(xfs.ExpandTilde(outDir))
			if err != nil {
				return fmt.Errorf("failed to open output directory: %w", err)
			}

			npzPath, info, err := preprocess.New(cfg.Pipeline.Preprocess, out).Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), map[string]any{
				"npz_path": npzPath,
				"info":     info,
			})
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: storage.processed_dir)")

	return cmd
}
