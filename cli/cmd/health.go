package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"edgeroute/cli/style"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check health of the store and publish targets",
	Aliases: []string{"doctor", "h"},
	RunE:    runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	h, err := client.Health()
	if err != nil {
		fmt.Println(style.ErrorBox.Render("Cannot reach edgeroute API at " + apiURL))
		return err
	}

	fmt.Println(style.Banner.Render("EDGEROUTE HEALTH"))

	serviceNames := map[string]string{
		"postgres": "PostgreSQL",
		"bolt":     "BoltDB",
		"consul":   "Consul KV",
		"s3":       "S3",
	}

	allUp := true
	for _, s := range h.Services {
		name := serviceNames[s.Name]
		if name == "" {
			name = s.Name
		}

		var label string
		switch s.Status {
		case "up":
			label = style.Healthy.Render("up")
		case "down":
			label = style.Unhealthy.Render("down")
			allUp = false
		default:
			label = style.Warning.Render(s.Status)
		}
		line := fmt.Sprintf("  %s  %-14s %s", style.ServiceDot(s.Status), style.Bold.Render(name), label)
		if s.Details != "" {
			line += "  " + style.DimText.Render(s.Details)
		}
		fmt.Println(line)
	}
	fmt.Println()

	if allUp {
		fmt.Println(style.SuccessBox.Render("All services healthy"))
	} else {
		fmt.Println(style.ErrorBox.Render("Some services are down"))
	}
	return nil
}
