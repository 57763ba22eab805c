package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the workflow graph",
	Long: `Print the compiled workflow graph, either as a mermaid flowchart or as
a YAML list of nodes and transitions.`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

var graphFormat string

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringVar(&graphFormat, "format", "mermaid", "output format (mermaid, yaml)")
}

func runGraph(cmd *cobra.Command, _ []string) error {
	if graphFormat != "mermaid" && graphFormat != "yaml" {
		return fmt.Errorf("unknown format %q: must be mermaid or yaml", graphFormat)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Printing the graph never touches history.
	cfg.History.Backend = "memory"

	a, err := newApp(context.Background(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if graphFormat == "mermaid" {
		_, err = fmt.Fprint(out, a.workflow.Mermaid())
		return err
	}
	data, err := yaml.Marshal(a.workflow.Describe())
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	_, err = out.Write(data)
	return err
}
