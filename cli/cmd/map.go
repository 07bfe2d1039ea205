package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"edgeroute/cli/api"
	"edgeroute/cli/style"
)

var mapTenant string

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Show which node answers for every location of every active domain",
	Args:  cobra.NoArgs,
	RunE:  runMap,
}

func init() {
	mapCmd.Flags().StringVar(&mapTenant, "tenant", "", "only domains of this tenant")
	rootCmd.AddCommand(mapCmd)
}

func runMap(cmd *cobra.Command, args []string) error {
	m, err := client.RoutingMap(mapTenant)
	if err != nil {
		return fmt.Errorf("routing map: %w", err)
	}
	if len(m.Domains) == 0 {
		fmt.Println(style.DimText.Render("No active domains."))
		return nil
	}

	for _, d := range m.Domains {
		fmt.Println(style.Title.Render(d.Domain) + style.Subtitle.Render(
			fmt.Sprintf("  %d direct, %d fallback, %d uncovered", d.Summary.Direct, d.Summary.Fallback, d.Summary.Uncovered)))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  LOCATION\tNODE\tIP\tMATCH\tDISTANCE")
		for _, dec := range d.Decisions {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", dec.LocationCode, orDash(dec.NodeName), orDash(dec.NodeIP), match(dec), distance(dec))
		}
		w.Flush()
		fmt.Println()
	}

	fmt.Printf("%s %s\n", style.Key.Render("Nodes"), style.Val.Render(strconv.Itoa(m.EligibleNodes)))
	fmt.Printf("%s %s\n", style.Key.Render("Locations"), style.Val.Render(strconv.Itoa(m.Totals.Total)))
	if m.Totals.Uncovered > 0 {
		fmt.Println(style.ErrorBox.Render(fmt.Sprintf("%d location(s) have no node", m.Totals.Uncovered)))
	}
	return nil
}

func match(d api.Decision) string {
	switch {
	case d.NodeID == "":
		return style.StepFailed.Render("none")
	case d.IsDirect:
		return style.StepDone.Render("direct")
	case d.IsLastResort:
		return style.Warning.Render("last resort")
	default:
		return "nearest"
	}
}

func distance(d api.Decision) string {
	if d.NodeID == "" {
		return "-"
	}
	if d.DistanceKm != nil && *d.DistanceKm > 0 {
		return strconv.FormatFloat(*d.DistanceKm, 'f', 0, 64) + " km"
	}
	return "score " + strconv.FormatFloat(d.DistanceScore, 'f', -1, 64)
}
