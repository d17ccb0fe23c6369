package cli

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"jordanella.com/autogui/internal/database"
)

var historyOpts struct {
	limit  int
	needle string
	moves  bool
	errors bool
	stats  bool
	prune  time.Duration
	reset  bool
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Show recorded locates, moves and errors",
	GroupID: "inspection",
	Example: `  autogui history
  autogui history --needle ok_button --limit 5
  autogui history --moves
  autogui history --stats
  autogui history --prune 720h
  autogui history --reset`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	flags := historyCmd.Flags()
	flags.IntVar(&historyOpts.limit, "limit", 20, "Maximum rows to show")
	flags.StringVar(&historyOpts.needle, "needle", "", "Only show locates of this needle")
	flags.BoolVar(&historyOpts.moves, "moves", false, "Show pointer moves")
	flags.BoolVar(&historyOpts.errors, "errors", false, "Show reported errors")
	flags.BoolVar(&historyOpts.stats, "stats", false, "Show per-needle statistics")
	flags.DurationVar(&historyOpts.prune, "prune", 0, "Delete history older than this and compact the database")
	flags.BoolVar(&historyOpts.reset, "reset", false, "Delete all recorded history")
}

// databaseSummary is the schema and table state shown with --stats
type databaseSummary struct {
	Version       int              `json:"version"`
	LatestVersion int              `json:"latest_version"`
	Rows          map[string]int64 `json:"rows"`
	RecentErrors  map[string]int   `json:"errors_last_24h"`
}

// statsOutput is the JSON form of --stats
type statsOutput struct {
	Needles  []*database.NeedleStats `json:"needles"`
	Database databaseSummary         `json:"database"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !appConfig.Database.Enabled {
		return errors.New("history is disabled (database off)")
	}

	db, err := database.OpenAndMigrate(appConfig.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch {
	case historyOpts.reset:
		return resetHistory(cmd, db)
	case historyOpts.prune > 0:
		return pruneHistory(cmd, db)
	case historyOpts.stats:
		return showNeedleStats(cmd, db)
	case historyOpts.moves:
		return showMoves(cmd, db)
	case historyOpts.errors:
		return showErrors(cmd, db)
	default:
		return showLocates(cmd, db)
	}
}

func showLocates(cmd *cobra.Command, db *database.DB) error {
	records, err := db.RecentLocates(historyOpts.needle, historyOpts.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, records)
	}

	printSection(out, "Locate history")
	if len(records) == 0 {
		printEmptyState(out, "No locates recorded")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.LocatedAt.Local().Format(time.DateTime),
			r.Needle,
			foundText(r.Found),
			pointText(r.X, r.Y),
			floatText(r.Similarity),
			fmt.Sprintf("%dms", r.ElapsedMs),
			stringText(r.ErrorMessage),
		})
	}
	printTable(out, []string{"TIME", "NEEDLE", "FOUND", "AT", "SIMILARITY", "ELAPSED", "ERROR"}, rows)
	return nil
}

func showMoves(cmd *cobra.Command, db *database.DB) error {
	records, err := db.RecentMoves(historyOpts.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, records)
	}

	printSection(out, "Move history")
	if len(records) == 0 {
		printEmptyState(out, "No moves recorded")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.MovedAt.Local().Format(time.DateTime),
			fmt.Sprintf("%d,%d", r.FromX, r.FromY),
			fmt.Sprintf("%d,%d", r.ToX, r.ToY),
			fmt.Sprintf("%d", r.Waypoints),
			fmt.Sprintf("%dms", r.DurationMs),
			fmt.Sprintf("%dms", r.ElapsedMs),
			stringText(r.ErrorMessage),
		})
	}
	printTable(out, []string{"TIME", "FROM", "TO", "WAYPOINTS", "DURATION", "ELAPSED", "ERROR"}, rows)
	return nil
}

func showErrors(cmd *cobra.Command, db *database.DB) error {
	records, err := db.GetRecentErrors(historyOpts.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, records)
	}

	printSection(out, "Errors")
	if len(records) == 0 {
		printEmptyState(out, "No errors recorded")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.OccurredAt.Local().Format(time.DateTime),
			r.Category,
			r.Severity,
			r.Component,
			r.Message,
			stringText(r.ErrorMessage),
		})
	}
	printTable(out, []string{"TIME", "CATEGORY", "SEVERITY", "COMPONENT", "MESSAGE", "ERROR"}, rows)
	return nil
}

func showNeedleStats(cmd *cobra.Command, db *database.DB) error {
	stats, err := db.GetNeedleStats()
	if err != nil {
		return err
	}
	summary, err := summarizeDatabase(db)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, statsOutput{Needles: stats, Database: summary})
	}

	printSection(out, "Needle statistics")
	if len(stats) == 0 {
		printEmptyState(out, "No locates recorded")
	} else {
		rows := make([][]string, 0, len(stats))
		for _, s := range stats {
			rows = append(rows, []string{
				s.Needle,
				fmt.Sprintf("%d/%d", s.Found, s.Attempts),
				fmt.Sprintf("%.4f", s.AvgSimilarity),
				fmt.Sprintf("%.1fms", s.AvgElapsedMs),
			})
		}
		printTable(out, []string{"NEEDLE", "FOUND", "AVG SIMILARITY", "AVG ELAPSED"}, rows)
	}

	printSection(out, "Database")
	printLabelValue(out, "Schema", fmt.Sprintf("v%d of v%d", summary.Version, summary.LatestVersion))
	printLabelValue(out, "Locates", fmt.Sprintf("%d", summary.Rows["locate_history"]))
	printLabelValue(out, "Moves", fmt.Sprintf("%d", summary.Rows["move_history"]))
	printLabelValue(out, "Errors", fmt.Sprintf("%d", summary.Rows["error_log"]))
	for _, category := range sortedKeys(summary.RecentErrors) {
		printLabelValue(out, "  "+category, fmt.Sprintf("%d in the last 24h", summary.RecentErrors[category]))
	}
	return nil
}

func summarizeDatabase(db *database.DB) (databaseSummary, error) {
	summary := databaseSummary{LatestVersion: database.LatestVersion()}

	var err error
	if summary.Version, err = db.GetVersion(); err != nil {
		return summary, err
	}
	if summary.Rows, err = db.GetStats(); err != nil {
		return summary, err
	}
	summary.RecentErrors, err = db.GetErrorStatsByCategory(time.Now().Add(-24 * time.Hour))
	return summary, err
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pruneHistory(cmd *cobra.Command, db *database.DB) error {
	cutoff := time.Now().Add(-historyOpts.prune)

	history, err := db.DeleteHistoryBefore(cutoff)
	if err != nil {
		return err
	}
	errs, err := db.DeleteOldErrors(cutoff)
	if err != nil {
		return err
	}
	if err := db.Vacuum(); err != nil {
		return fmt.Errorf("failed to compact database: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, map[string]int64{"history": history, "errors": errs})
	}
	printSuccess(out, fmt.Sprintf("Deleted %d history rows and %d errors older than %s",
		history, errs, cutoff.Format(time.DateTime)))
	return nil
}

func resetHistory(cmd *cobra.Command, db *database.DB) error {
	if err := db.Reset(); err != nil {
		return err
	}
	if err := db.Vacuum(); err != nil {
		return fmt.Errorf("failed to compact database: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, map[string]bool{"reset": true})
	}
	printSuccess(out, "Deleted all history")
	return nil
}

func foundText(found bool) string {
	if found {
		return "yes"
	}
	return "no"
}

func pointText(x, y *int) string {
	if x == nil || y == nil {
		return "-"
	}
	return fmt.Sprintf("%d,%d", *x, *y)
}

func floatText(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func stringText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
