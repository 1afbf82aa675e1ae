package cmd

import (
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/loratune/internal/observability"
	"github.com/3leaps/loratune/pkg/finetune"
)

var (
	mergeLora   string
	mergeModel  string
	mergeOutput string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge LoRA weights into a base model (not yet available)",
	Long: `Merge trained LoRA adapter weights into a base model.

Merging is not implemented yet; the command checks its arguments and exits 1.

Example:
  loratune merge --lora out/lora.bin --model base.gguf --output merged.gguf`,
	Args: cobra.NoArgs,
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVar(&mergeLora, "lora", "", "Path to LoRA weights")
	mergeCmd.Flags().StringVar(&mergeModel, "model", "", "Path to base model")
	mergeCmd.Flags().StringVar(&mergeOutput, "output", "", "Output path for merged model")
}

func runMerge(cmd *cobra.Command, _ []string) error {
	err := finetune.Merge(cmd.Context(), finetune.MergeRequest{
		AdapterPath:   mergeLora,
		BaseModelPath: mergeModel,
		OutputPath:    mergeOutput,
	})
	if errors.Is(err, finetune.ErrMergeUnavailable) {
		observability.CLILogger.Warn("Merging LoRA weights is not available yet",
			zap.String("lora", mergeLora),
			zap.String("model", mergeModel),
			zap.String("output", mergeOutput))
		return exitError(exitFailure, "", err)
	}
	return exitError(foundry.ExitInvalidArgument, "Invalid merge arguments", err)
}
