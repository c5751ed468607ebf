package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/render"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print workgraph version information",
	Annotations: map[string]string{"skipDB": "true"},
	Run: func(cmd *cobra.Command, args []string) {
		w := getWriter(cmd)

		bold := lipgloss.NewStyle().Bold(true)
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		msg := fmt.Sprintf("workgraph %s %s",
			render.StyledText(version, bold),
			render.StyledText(fmt.Sprintf("(commit %s, built %s)", commit, buildDate), dim),
		)

		w.Success(map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		}, msg)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
