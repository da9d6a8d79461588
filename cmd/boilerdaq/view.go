package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/softboiler/boilerdaq/internal/config"
	"github.com/softboiler/boilerdaq/internal/viewer"
)

var viewCmd = &cobra.Command{
	Use:   "view [results]",
	Short: "Browse recorded runs",
	Long: `Opens the newest results file recorded for the given base path (the
configured results path by default). [ and ] step between runs; h and l
move the time cursor.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base := cfg.Results
		if len(args) == 1 {
			base = args[0]
		}
		return viewer.Run(base, viewPanels(cfg.Groups))
	},
}

// viewPanels lays out recorded runs the way the live display groups them.
func viewPanels(groups config.Groups) []viewer.Panel {
	out := make([]viewer.Panel, len(groups))
	for i, g := range groups {
		out[i] = viewer.Panel{Name: g.Name, Members: strings.Fields(g.Members)}
	}
	return out
}
