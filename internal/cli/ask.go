package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	askSkill      string
	askOutputFile string
	askDetach     bool
	askPlain      bool
	askWebsocket  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Submit a query and wait for its report",
	Long: `Submit a query to be answered with a skill and follow the job until the
HTML report is ready. The report is written to --output, or to
report-<job-id>.html by default.

Examples:
  tellmenow ask "How many pages does kiongroup.com have?"
  tellmenow ask "Overview of go.dev" --skill site-overviewer -o go.html
  tellmenow ask "Overview of go.dev" --detach`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job until it finishes",
	Long: `Follow the progress of an existing job. Watching a queued job starts it.

Examples:
  tellmenow watch 3f9a1c2b7d4e
  tellmenow watch 3f9a1c2b7d4e --ws -o report.html`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	for _, cmd := range []*cobra.Command{askCmd, watchCmd} {
		cmd.Flags().StringVarP(&askOutputFile, "output", "o", "", "write the HTML report to file")
		cmd.Flags().BoolVar(&askPlain, "plain", false, "print progress lines instead of the interactive display")
		cmd.Flags().BoolVar(&askWebsocket, "ws", false, "follow over websocket instead of server-sent events")
	}
	askCmd.Flags().StringVarP(&askSkill, "skill", "s", "site-overviewer", "skill to answer with")
	askCmd.Flags().BoolVarP(&askDetach, "detach", "d", false, "print the job id and return without waiting")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	id, err := apiClient.Submit(ctx, args[0], askSkill)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	if askDetach {
		fmt.Println(id)
		return nil
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Submitted job %s\n", id)
	}
	return followJob(ctx, id)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return followJob(ctx, args[0])
}

func followJob(ctx context.Context, id string) error {
	follow := follower(apiClient, askWebsocket)

	var state *jobState
	var err error
	if askPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		state, err = followPlain(ctx, os.Stdout, follow, id)
	} else {
		state, err = runJobProgress(ctx, follow, id)
	}
	if err != nil {
		return err
	}
	if state == nil {
		// Detached from the display; the job keeps running.
		return nil
	}
	return saveReport(state, id)
}

func saveReport(state *jobState, id string) error {
	if state.result == nil || state.result.HTMLReport == nil {
		return fmt.Errorf("job %s finished without a report", id)
	}

	path := askOutputFile
	if path == "" {
		path = fmt.Sprintf("report-%s.html", id)
	}
	if err := os.WriteFile(path, []byte(*state.result.HTMLReport), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("Report saved to %s\n", path)
	return nil
}
