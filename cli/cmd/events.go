package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"edgeroute/api/saga"
	"edgeroute/cli/style"
)

var (
	eventsNode  string
	eventsLimit int
)

func init() {
	eventsCmd.Flags().StringVar(&eventsNode, "node", "", "filter by node id")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 30, "number of events")
	rootCmd.AddCommand(eventsCmd)
}

var eventsCmd = &cobra.Command{
	Use:     "events [saga-id]",
	Short:   "View node registration events",
	Aliases: []string{"saga"},
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := saga.Timeline{ShowNode: len(args) == 0 && eventsNode == ""}
		if len(args) > 0 {
			sagaID := args[0]
			events, err := client.GetSagaEvents(sagaID)
			if err != nil {
				return fmt.Errorf("fetch saga events: %w", err)
			}
			fmt.Println(style.Title.Render("saga " + short(sagaID)))
			fmt.Print(f.Format(events))
			return nil
		}

		events, err := client.ListEvents(eventsNode, eventsLimit)
		if err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println(style.DimText.Render("no registration events"))
			return nil
		}

		title := "recent registration events"
		if eventsNode != "" {
			title = "registration events for " + short(eventsNode)
		}
		fmt.Println(style.Title.Render(title))
		// Newest first from the API; print oldest first.
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
		fmt.Print(f.Format(events))
		return nil
	},
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
