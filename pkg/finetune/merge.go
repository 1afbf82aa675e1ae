package finetune

import (
	"context"
	"errors"
	"strings"
)

// ErrMergeUnavailable is returned by Merge until adapter merging is supported.
var ErrMergeUnavailable = errors.New("merging LoRA weights into a base model is not available yet")

// MergeRequest names the inputs and output of an adapter merge.
type MergeRequest struct {
	AdapterPath   string
	BaseModelPath string
	OutputPath    string
}

// Merge merges adapter weights into a base model.
//
// No merge algorithm exists yet. Merge checks that all three paths are given
// and then reports ErrMergeUnavailable.
func Merge(ctx context.Context, req MergeRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	if strings.TrimSpace(req.AdapterPath) == "" {
		errs = append(errs, &ConfigError{Field: "lora", Message: "adapter path is required"})
	}
	if strings.TrimSpace(req.BaseModelPath) == "" {
		errs = append(errs, &ConfigError{Field: "model", Message: "base model path is required"})
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		errs = append(errs, &ConfigError{Field: "output", Message: "output path is required"})
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return ErrMergeUnavailable
}
