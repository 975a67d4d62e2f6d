package commands

import (
	"github.com/spf13/cobra"

	"github.com/ekisa-team/modma/internal/classifier"
	"github.com/ekisa-team/modma/internal/model"
)

func newPredictCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "predict <archive.npz>",
		Short: "Classify an epoch archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			manager := model.NewManager()
			if err := manager.LoadFromConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			artifacts, err := manager.Artifacts()
			if err != nil {
				return err
			}

			prediction, err := classifier.NewPredictor(cfg.Pipeline.Inference).PredictFile(cmd.Context(), artifacts, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), prediction)
		},
	}
}
