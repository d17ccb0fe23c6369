package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Short:   "List registered needle templates",
	GroupID: "inspection",
	Args:    cobra.NoArgs,
	RunE:    runTemplates,
}

// templateOutput is the JSON form of a registered template
type templateOutput struct {
	Name       string  `json:"name"`
	Path       string  `json:"path"`
	Confidence float64 `json:"confidence,omitempty"`
	Stride     int     `json:"stride,omitempty"`
	Region     string  `json:"region,omitempty"`
}

func runTemplates(cmd *cobra.Command, args []string) error {
	// Templates do not need the database
	cfg := *appConfig
	cfg.Database.Enabled = false

	a, err := newApp(&cfg)
	if err != nil {
		return err
	}
	defer a.close()

	names := a.registry.List()
	entries := make([]templateOutput, 0, len(names))
	for _, name := range names {
		t, _ := a.registry.Get(name)
		entry := templateOutput{
			Name:       t.Name,
			Path:       t.Path,
			Confidence: t.Confidence,
			Stride:     t.Stride,
		}
		if t.Region != nil {
			entry.Region = fmt.Sprintf("%d,%d,%d,%d", t.Region.X, t.Region.Y, t.Region.Width, t.Region.Height)
		}
		entries = append(entries, entry)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, entries)
	}

	printSection(out, fmt.Sprintf("Templates in %s (%d)", cfg.Templates.Dir, a.registry.Count()))
	if len(entries) == 0 {
		printEmptyState(out, "No templates registered")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		confidence, stride := "default", "default"
		if e.Confidence > 0 {
			confidence = fmt.Sprintf("%.4f", e.Confidence)
		}
		if e.Stride > 0 {
			stride = fmt.Sprintf("%d", e.Stride)
		}
		region := e.Region
		if region == "" {
			region = "full screen"
		}
		rows = append(rows, []string{e.Name, confidence, stride, region, e.Path})
	}
	printTable(out, []string{"NAME", "CONFIDENCE", "STRIDE", "REGION", "PATH"}, rows)
	return nil
}
