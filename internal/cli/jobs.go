package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	jobsLimit  int
	jobsOffset int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List your jobs or inspect one",
	Long: `List your job history (newest first) or inspect a specific job by ID.
Listing requires a user id (--user or $TELLMENOW_USER_ID).

Examples:
  tellmenow jobs             # List your jobs
  tellmenow jobs -n 10       # The ten most recent
  tellmenow jobs abc123      # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 0, "max jobs to list (server default 50)")
	jobsCmd.Flags().IntVar(&jobsOffset, "offset", 0, "jobs to skip")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.History(ctx, jobsLimit, jobsOffset)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-14s %-11s %-18s %-17s %s\n", "ID", "STATUS", "SKILL", "CREATED", "TITLE")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, job := range jobs {
		title := job.Query
		if job.ReportTitle != nil {
			title = *job.ReportTitle
		}
		fmt.Printf("%-14s %-11s %-18s %-17s %s\n",
			job.ID, job.Status, job.SkillID, job.CreatedAt.Local().Format("2006-01-02 15:04"), title)
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.JobID)
	fmt.Printf("  Query: %s\n", job.Query)
	fmt.Printf("  Skill: %s\n", job.SkillID)
	fmt.Printf("  Status: %s (%.0f%%) %s\n", job.Status, job.Progress.Progress*100, job.Progress.Message)

	if job.Error != nil && *job.Error != "" {
		fmt.Printf("  Error: %s\n", *job.Error)
	}

	if r := job.Result; r != nil {
		fmt.Println("\nResult:")
		if r.ReportTitle != nil {
			fmt.Printf("  Title: %s\n", *r.ReportTitle)
		}
		if r.HTMLReport != nil {
			fmt.Printf("  Report: %d bytes\n", len(*r.HTMLReport))
		}
		if r.Reasoning != nil {
			fmt.Printf("  Reasoning: %d characters\n", len([]rune(*r.Reasoning)))
		}
	}

	return nil
}

var publishCmd = &cobra.Command{
	Use:   "publish <job-id>",
	Short: "Publish a completed report as a shareable page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		page, err := apiClient.Publish(ctx, args[0])
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Printf("Published %s\n  %s%s\n", page.ID, apiClient.BaseURL(), page.URL)
		return nil
	},
}
