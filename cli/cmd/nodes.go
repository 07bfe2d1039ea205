package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"edgeroute/cli/api"
	"edgeroute/cli/style"
)

var nodesTenant string

var nodesCmd = &cobra.Command{
	Use:     "nodes",
	Short:   "List resolver nodes with status and last heartbeat",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE:    runNodes,
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage a single resolver node",
}

var nodeCreateTenant string

var nodeCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a node and print its one-time connection token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		created, err := client.CreateNode(args[0], nodeCreateTenant)
		if err != nil {
			return fmt.Errorf("create node: %w", err)
		}
		fmt.Println(style.SuccessBox.Render("Node " + created.Node.Name + " created"))
		fmt.Printf("  %s %s\n", style.Key.Render("ID"), style.Val.Render(created.Node.ID))
		fmt.Printf("  %s %s\n", style.Key.Render("Node key"), style.Val.Render(created.NodeKey))
		fmt.Printf("  %s %s\n", style.Key.Render("Connect"), style.Val.Render(apiURL+created.ConnectURL))
		fmt.Println()
		fmt.Println(style.DimText.Render("  The connect URL works once. Run it from the node so its address is recorded."))
		return nil
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a node and remove it from every location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.DeleteNode(args[0]); err != nil {
			return fmt.Errorf("delete node: %w", err)
		}
		fmt.Println(style.SuccessBox.Render("Node " + args[0] + " deleted"))
		return nil
	},
}

func init() {
	nodesCmd.Flags().StringVar(&nodesTenant, "tenant", "", "only nodes of this tenant")
	nodeCreateCmd.Flags().StringVar(&nodeCreateTenant, "tenant", "", "tenant that owns the node")
	nodeCmd.AddCommand(nodeCreateCmd, nodeDeleteCmd)
	rootCmd.AddCommand(nodesCmd, nodeCmd)
}

func runNodes(cmd *cobra.Command, args []string) error {
	nodes, err := client.ListNodes(nodesTenant)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	if len(nodes) == 0 {
		fmt.Println(style.DimText.Render("No resolver nodes. Run 'edgectl node create <name>' to add one."))
		return nil
	}

	fmt.Println(style.Banner.Render("EDGEROUTE") + style.Subtitle.Render(fmt.Sprintf("  %d node(s)", len(nodes))))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tSTATUS\tIP\tLOCATION\tLAST SEEN\tID")
	for _, n := range nodes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			style.NodeDot(n.Status), n.Name, n.Status, orDash(n.IPAddress), location(n), lastSeen(n), style.DimText.Render(n.ID))
	}
	w.Flush()
	return nil
}

func location(n api.Node) string {
	if n.Geo == nil {
		return "-"
	}
	if n.Geo.City != "" && n.Geo.City != "Unknown" {
		return n.Geo.City + ", " + n.Geo.CountryCode
	}
	return n.Geo.CountryCode
}

func lastSeen(n api.Node) string {
	if n.LastSeenMinutesAgo == nil {
		return "never"
	}
	m := *n.LastSeenMinutesAgo
	switch {
	case m < 1:
		return "just now"
	case m < 60:
		return fmt.Sprintf("%dm ago", m)
	case m < 48*60:
		return fmt.Sprintf("%dh ago", m/60)
	default:
		return fmt.Sprintf("%dd ago", m/(24*60))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
