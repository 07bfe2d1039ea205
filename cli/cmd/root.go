package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"edgeroute/cli/api"
)

var (
	apiURL   string
	apiToken string
	client   *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "edgectl",
	Short: "Operator CLI for the edgeroute resolver control plane",
	Long: `edgectl talks to an edgeroute API server.

List resolver nodes and their health, create nodes, inspect which node
answers for every location of every domain, and follow registration events.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = api.New(apiURL, apiToken)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("EDGEROUTE_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8900"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "edgeroute API URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("EDGEROUTE_API_TOKEN"), "API bearer token")
}
