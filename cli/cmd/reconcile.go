package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"edgeroute/cli/style"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a node health pass now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := client.Reconcile()
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		fmt.Printf("%s %d checked, %s active, %s inactive\n",
			style.DotHealthy, rep.Checked,
			style.Healthy.Render(fmt.Sprint(rep.Active)),
			style.Unhealthy.Render(fmt.Sprint(rep.Inactive)))
		if len(rep.Deactivated) > 0 {
			fmt.Println(style.Warning.Render("  deactivated: " + strings.Join(rep.Deactivated, ", ")))
		}
		if len(rep.Activated) > 0 {
			fmt.Println(style.StepDone.Render("  activated:   " + strings.Join(rep.Activated, ", ")))
		}
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish anycast records to every configured target now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.Publish(); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Println(style.SuccessBox.Render("Published"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd, publishCmd)
}
