package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"jordanella.com/autogui/internal/motion"
)

var moveOpts struct {
	from     string
	duration time.Duration
}

var moveCmd = &cobra.Command{
	Use:     "move <x> <y>",
	Short:   "Move the pointer along a paced path",
	GroupID: "automation",
	Long: `Move the pointer from its current position, or --from, to x,y.

The pointer visits every pixel on the way and the whole move takes
--duration. A zero duration jumps straight to the destination.`,
	Example: `  autogui move 640 360
  autogui move 640 360 --duration 500ms
  autogui --backend adb move 540 1200 --from 540,200 --duration 1s`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func init() {
	flags := moveCmd.Flags()
	flags.StringVar(&moveOpts.from, "from", "", "Start point x,y (default current pointer position)")
	flags.DurationVar(&moveOpts.duration, "duration", 0, "Total move duration (default from config)")
}

func runMove(cmd *cobra.Command, args []string) error {
	to, err := parseTarget(args)
	if err != nil {
		return err
	}

	duration := appConfig.Motion.Duration
	if cmd.Flags().Changed("duration") {
		duration = moveOpts.duration
	}

	a, err := newApp(appConfig)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(); err != nil {
		return err
	}

	from, err := moveOrigin(a)
	if err != nil {
		return err
	}

	req := motion.MoveRequest{From: from, To: to, Duration: duration}
	start := time.Now()
	if err := a.mover.Move(cmd.Context(), req); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, map[string]interface{}{
			"from":       []int{from.X, from.Y},
			"to":         []int{to.X, to.Y},
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}
	printSuccess(out, fmt.Sprintf("Moved %s -> %s in %v", from, to, time.Since(start).Round(time.Millisecond)))
	return nil
}

func parseTarget(args []string) (motion.Waypoint, error) {
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return motion.Waypoint{}, fmt.Errorf("invalid x %q: %w", args[0], err)
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return motion.Waypoint{}, fmt.Errorf("invalid y %q: %w", args[1], err)
	}
	return motion.Waypoint{X: x, Y: y}, nil
}

func moveOrigin(a *app) (motion.Waypoint, error) {
	if moveOpts.from != "" {
		return parsePoint(moveOpts.from)
	}
	if from, ok := a.pointerPosition(); ok {
		return from, nil
	}
	return motion.Waypoint{}, errors.New("this backend cannot report the pointer position; pass --from")
}
