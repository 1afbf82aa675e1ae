package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/loratune/internal/observability"
	"github.com/3leaps/loratune/pkg/artifactstore"
	"github.com/3leaps/loratune/pkg/output"
)

var (
	publishRegion    string
	publishProfile   string
	publishEndpoint  string
	publishPathStyle bool
	publishOverwrite bool
)

var publishCmd = &cobra.Command{
	Use:   "publish <artifact> <s3://bucket/key>",
	Short: "Upload trained LoRA weights to S3",
	Long: `Upload a trained adapter file to S3 or an S3-compatible store.

A destination ending in "/" is treated as a prefix and the artifact's file
name is appended. Existing objects are not replaced unless --overwrite is
given. One loratune.artifact.v1 record is written to stdout on success.

Examples:
  loratune publish out/lora.bin s3://models/adapters/
  loratune publish out/lora.bin s3://models/adapters/v2.bin --overwrite
  loratune publish out/lora.bin s3://models/lora.bin --endpoint http://localhost:9000 --path-style`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&publishRegion, "region", "", "AWS region")
	publishCmd.Flags().StringVar(&publishProfile, "profile", "", "AWS shared config profile")
	publishCmd.Flags().StringVar(&publishEndpoint, "endpoint", "", "Custom endpoint URL for S3-compatible stores")
	publishCmd.Flags().BoolVar(&publishPathStyle, "path-style", false, "Use path-style addressing")
	publishCmd.Flags().BoolVar(&publishOverwrite, "overwrite", false, "Replace an existing object")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	artifact := args[0]

	info, err := os.Stat(artifact)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Artifact not found", err)
	}
	if info.IsDir() {
		return exitError(foundry.ExitInvalidArgument, "Artifact is a directory", errors.New(artifact))
	}

	loc, err := artifactstore.ParseURI(args[1])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid destination", err)
	}
	loc = loc.WithBase(filepath.Base(artifact))

	store, err := artifactstore.New(ctx, artifactstore.Config{
		Bucket:         loc.Bucket,
		Region:         publishRegion,
		Endpoint:       publishEndpoint,
		Profile:        publishProfile,
		ForcePathStyle: publishPathStyle,
	}, observability.CLILogger)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to create S3 client", err)
	}

	obj, err := store.Publish(ctx, artifact, loc.Key, publishOverwrite)
	if err != nil {
		return exitError(publishExitCode(err), "Failed to publish artifact", err)
	}

	observability.CLILogger.Info("Published "+artifact+" to "+obj.URI(),
		zap.Int64("size", obj.Size),
		zap.String("etag", obj.ETag))

	w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String())
	defer func() { _ = w.Close() }()
	if err := w.WriteArtifact(ctx, &output.ArtifactRecord{
		Source: artifact,
		URI:    obj.URI(),
		Size:   obj.Size,
		ETag:   obj.ETag,
	}); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func publishExitCode(err error) int {
	switch {
	case errors.Is(err, artifactstore.ErrAlreadyExists):
		return foundry.ExitInvalidArgument
	case errors.Is(err, os.ErrNotExist):
		return foundry.ExitFileNotFound
	case errors.Is(err, artifactstore.ErrBucketNotFound):
		return foundry.ExitInvalidArgument
	default:
		return foundry.ExitExternalServiceUnavailable
	}
}
