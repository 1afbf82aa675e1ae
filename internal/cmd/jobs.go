package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/loratune/pkg/finetune"
	"github.com/3leaps/loratune/pkg/jobregistry"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect training job history",
	Long: `Inspect records of past and running training jobs.

A record is written when training starts and updated when it ends. Job ids
may be shortened to any unique prefix.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List training jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Show status for a job (default: most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsStatus,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func jobsStore(cmd *cobra.Command) (*jobregistry.Store, error) {
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return nil, exitError(exitFailure, "Failed to load configuration", err)
	}
	return jobregistry.NewStore(cfg.Jobs.Dir), nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := jobsStore(cmd)
	if err != nil {
		return err
	}
	jobs, err := store.List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read job history", err)
	}
	return printJobs(cmd.OutOrStdout(), jobs, jsonOutput)
}

func printJobs(out io.Writer, jobs []jobregistry.JobRecord, jsonOutput bool) error {
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(out, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tSTATE\tCREATED\tENDED\tEXIT\tOUTPUT")
	for _, j := range jobs {
		exit := "-"
		if j.ExitCode != nil {
			exit = fmt.Sprintf("%d", *j.ExitCode)
		}
		outputPath := j.OutputPath
		if outputPath == "" {
			outputPath = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortJobID(j.JobID),
			j.State,
			formatOptionalTime(&j.CreatedAt),
			formatOptionalTime(j.EndedAt),
			exit,
			outputPath,
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := jobsStore(cmd)
	if err != nil {
		return err
	}

	var rec *jobregistry.JobRecord
	if len(args) == 0 {
		rec, err = store.Latest()
	} else {
		var resolvedID string
		resolvedID, err = resolveJobID(store, args[0])
		if err == nil {
			rec, err = store.Get(resolvedID)
		}
	}
	if err != nil {
		if errors.Is(err, jobregistry.ErrJobNotFound) {
			return exitError(foundry.ExitFileNotFound, "Job not found", err)
		}
		return exitError(foundry.ExitInvalidArgument, "Cannot resolve job", err)
	}

	return printJobStatus(cmd.OutOrStdout(), rec, jsonOutput)
}

func printJobStatus(out io.Writer, rec *jobregistry.JobRecord, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(out, "job_id=%s\n", rec.JobID)
	_, _ = fmt.Fprintf(out, "state=%s\n", rec.State)
	_, _ = fmt.Fprintf(out, "model=%s\n", rec.ModelPath)
	_, _ = fmt.Fprintf(out, "data=%s\n", rec.DataPath)
	_, _ = fmt.Fprintf(out, "output=%s\n", rec.OutputPath)
	_, _ = fmt.Fprintf(out, "engine=%s\n", rec.Engine)
	hp := rec.Hyperparameters
	_, _ = fmt.Fprintf(out, "epochs=%d batch_size=%d learning_rate=%s threads=%d ctx_size=%d\n",
		hp.Epochs, hp.BatchSize, finetune.FormatLearningRate(hp.LearningRate), hp.Threads, hp.CtxSize)
	if rec.PID > 0 {
		_, _ = fmt.Fprintf(out, "pid=%d\n", rec.PID)
	}
	_, _ = fmt.Fprintf(out, "created_at=%s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(out, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}
	if rec.Outcome != "" {
		_, _ = fmt.Fprintf(out, "outcome=%s\n", rec.Outcome)
	}
	if rec.ExitCode != nil {
		_, _ = fmt.Fprintf(out, "exit_code=%d\n", *rec.ExitCode)
	}
	if rec.Reason != "" {
		_, _ = fmt.Fprintf(out, "reason=%s\n", rec.Reason)
	}
	return nil
}

func shortJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if len(jobID) <= 12 {
		return jobID
	}
	return jobID[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func resolveJobID(store *jobregistry.Store, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("job_id is required")
	}

	// Exact match first.
	if _, err := store.Get(input); err == nil {
		return input, nil
	}

	// Prefix match (allows table-friendly short IDs).
	jobs, err := store.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, j := range jobs {
		if strings.HasPrefix(j.JobID, input) {
			matches = append(matches, j.JobID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", jobregistry.ErrJobNotFound, input)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("job id prefix is ambiguous: %s (matches %d jobs)", input, len(matches))
}
