package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/cuongbtq/learning-hub/internal/domain"
	"github.com/cuongbtq/learning-hub/internal/storage"
	"github.com/spf13/cobra"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

func (c *cli) enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <payload-ref>...",
		Short: "Add one pending job per payload reference",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, ref := range args {
				job, err := c.store.Enqueue(cmd.Context(), ref)
				if err != nil {
					return fmt.Errorf("failed to enqueue %q: %w", ref, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", job.ID, job.PayloadRef)
			}
			return nil
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := c.store.GetStats(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "total\t%d\n", stats.Total)
			fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
			fmt.Fprintf(w, "processing\t%d\n", stats.Processing)
			fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
			fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
			return w.Flush()
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !domain.IsValidStatus(status) {
				return fmt.Errorf("invalid status %q", status)
			}
			if limit <= 0 {
				return fmt.Errorf("limit must be greater than 0")
			}

			jobs, err := c.store.ListJobs(cmd.Context(), storage.JobFilter{
				Status:   status,
				PageSize: limit,
			})
			if err != nil {
				return err
			}
			if len(jobs) > limit {
				jobs = jobs[:limit]
			}

			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPAYLOAD\tSTATUS\tATTEMPTS\tCREATED")
			for _, job := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
					job.ID,
					job.PayloadRef,
					job.Status,
					job.Attempts,
					job.MaxAttempts,
					job.CreatedAt.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only show jobs in this status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to show")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := c.store.GetJob(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, domain.ErrJobNotFound) {
					return fmt.Errorf("job %s not found", args[0])
				}
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "id\t%s\n", job.ID)
			fmt.Fprintf(w, "payload_ref\t%s\n", job.PayloadRef)
			fmt.Fprintf(w, "status\t%s\n", job.Status)
			fmt.Fprintf(w, "attempts\t%d/%d\n", job.Attempts, job.MaxAttempts)
			fmt.Fprintf(w, "created_at\t%s\n", job.CreatedAt.Format(time.RFC3339Nano))
			fmt.Fprintf(w, "updated_at\t%s\n", job.UpdatedAt.Format(time.RFC3339Nano))
			if job.CompletedAt.Valid {
				fmt.Fprintf(w, "completed_at\t%s\n", job.CompletedAt.Time.Format(time.RFC3339Nano))
			}
			if job.LastError.Valid {
				fmt.Fprintf(w, "last_error\t%s\n", job.LastError.String)
			}
			return w.Flush()
		},
	}
}
