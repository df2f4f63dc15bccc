// Package cli provides the command-line interface for tellmenow.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/tellmenow/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	userID    string
	verbose   bool

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tellmenow",
	Short: "Turn questions into HTML reports",
	Long: `TellMeNow answers a query with a skill: the server reasons about it with an
LLM, optionally fetching web pages, and renders a standalone HTML report.

Jobs run on the server. This CLI submits them and follows their progress,
and manages the skills you can ask with.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.New(serverURL)
		if userID != "" {
			apiClient = apiClient.WithUser(userID)
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $TELLMENOW_SERVER_URL or http://localhost:8787)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id sent to the server (default $TELLMENOW_USER_ID)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(usageCmd)
}
