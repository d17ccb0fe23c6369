package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"jordanella.com/autogui/internal/cv"
	"jordanella.com/autogui/internal/motion"
)

var locateOpts struct {
	confidence float64
	stride     int
	workers    int
	region     string
	wait       time.Duration
	debugOut   string
	image      string
	haystack   string
	move       bool
	duration   time.Duration
}

var locateCmd = &cobra.Command{
	Use:     "locate [needle]",
	Short:   "Find a needle image on screen",
	GroupID: "automation",
	Long: `Find a needle on screen and print where it is.

The needle is either a template name from the template directory or an
image file given with --image. Flags override the template's own settings,
which override the configuration file.`,
	Example: `  autogui locate ok_button
  autogui locate --image button.png --confidence 0.95 --stride 2
  autogui locate ok_button --wait 5s --move --duration 300ms
  autogui locate --image button.png --haystack screen.png --debug-out match.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLocate,
}

func init() {
	flags := locateCmd.Flags()
	flags.Float64Var(&locateOpts.confidence, "confidence", cv.DefaultConfidence, "Minimum similarity in [0, 1]")
	flags.IntVar(&locateOpts.stride, "stride", cv.DefaultStride, "Step between candidate positions")
	flags.IntVar(&locateOpts.workers, "workers", 1, "Goroutines used to scan rows")
	flags.StringVar(&locateOpts.region, "region", "", "Search only within x,y,width,height")
	flags.DurationVar(&locateOpts.wait, "wait", 0, "Poll until the needle appears or this timeout elapses")
	flags.StringVar(&locateOpts.debugOut, "debug-out", "", "Write the frame with the best candidate outlined")
	flags.StringVar(&locateOpts.image, "image", "", "Needle image file instead of a template name")
	flags.StringVar(&locateOpts.haystack, "haystack", "", "Search this image file instead of the screen")
	flags.BoolVar(&locateOpts.move, "move", false, "Move the pointer to the centre of the match")
	flags.DurationVar(&locateOpts.duration, "duration", 0, "Pointer move duration (default from config)")
}

// locateOutput is the JSON form of a locate result
type locateOutput struct {
	Needle      string  `json:"needle"`
	Found       bool    `json:"found"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	CenterX     int     `json:"center_x"`
	CenterY     int     `json:"center_y"`
	Score       int     `json:"score"`
	Similarity  float64 `json:"similarity"`
	Confidence  float64 `json:"confidence"`
	Comparisons int     `json:"comparisons"`
}

func runLocate(cmd *cobra.Command, args []string) error {
	if (len(args) == 1) == (locateOpts.image != "") {
		return errors.New("give either a template name or --image")
	}
	if locateOpts.move && locateOpts.haystack != "" {
		return errors.New("--move needs the screen, not --haystack")
	}

	opts, err := locateOptions(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(appConfig)
	if err != nil {
		return err
	}
	defer a.close()

	name, err := a.resolveNeedle(args)
	if err != nil {
		return err
	}

	if locateOpts.haystack != "" {
		img, err := cv.LoadImage(locateOpts.haystack)
		if err != nil {
			return err
		}
		a.useCapturer(&imageCapturer{img: img})
	} else if err := a.connect(); err != nil {
		return err
	}

	var (
		result    *cv.MatchResult
		locateErr error
	)
	if locateOpts.wait > 0 {
		result, locateErr = a.service.WaitFor(cmd.Context(), name, locateOpts.wait, opts...)
	} else {
		result, _, locateErr = a.service.LocateOnScreen(name, opts...)
	}
	if result == nil {
		return locateErr
	}

	a.writeDebugImage(name, result)

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := outputJSON(out, newLocateOutput(name, result)); err != nil {
			return err
		}
	} else {
		printLocateResult(cmd, name, result)
	}

	if locateErr != nil {
		return locateErr
	}

	if locateOpts.move {
		return moveToMatch(cmd, a, result)
	}
	return nil
}

// resolveNeedle returns the registry name to locate, registering --image files
func (a *app) resolveNeedle(args []string) (string, error) {
	if locateOpts.image == "" {
		name := args[0]
		if !a.registry.Has(name) {
			return "", fmt.Errorf("unknown template '%s' (%d loaded from %s)", name, a.registry.Count(), a.cfg.Templates.Dir)
		}
		return name, nil
	}

	if _, err := os.Stat(locateOpts.image); err != nil {
		return "", fmt.Errorf("failed to read needle: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(locateOpts.image), filepath.Ext(locateOpts.image))
	if err := a.registry.Register(cv.Template{Name: name, Path: locateOpts.image}); err != nil {
		return "", err
	}
	return name, nil
}

// locateOptions returns matcher options for the flags set on the command line
func locateOptions(cmd *cobra.Command) ([]cv.Option, error) {
	var opts []cv.Option
	flags := cmd.Flags()
	if flags.Changed("confidence") {
		opts = append(opts, cv.WithConfidence(locateOpts.confidence))
	}
	if flags.Changed("stride") {
		opts = append(opts, cv.WithStride(locateOpts.stride))
	}
	if flags.Changed("workers") {
		opts = append(opts, cv.WithWorkers(locateOpts.workers))
	}
	if locateOpts.region != "" {
		region, err := parseRegion(locateOpts.region)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cv.WithRegion(region))
	}
	return opts, nil
}

func (a *app) writeDebugImage(name string, result *cv.MatchResult) {
	path := locateOpts.debugOut
	if path == "" && a.cfg.Locate.DebugDir != "" {
		path = filepath.Join(a.cfg.Locate.DebugDir,
			fmt.Sprintf("%s_%s.png", name, time.Now().Format("20060102_150405")))
	}
	if path == "" {
		return
	}

	frame, err := a.service.CaptureFrame(true)
	if err != nil {
		a.logger.Warn("Failed to capture debug frame: " + err.Error())
		return
	}
	a.service.SaveFrame(cv.DebugMatch(frame, result), path)
}

func moveToMatch(cmd *cobra.Command, a *app, result *cv.MatchResult) error {
	center := result.Center()
	to := motion.Waypoint{X: center.X, Y: center.Y}

	from, ok := a.pointerPosition()
	if !ok {
		from = to
	}

	duration := a.cfg.Motion.Duration
	if cmd.Flags().Changed("duration") {
		duration = locateOpts.duration
	}

	return a.mover.Move(cmd.Context(), motion.MoveRequest{From: from, To: to, Duration: duration})
}

func newLocateOutput(name string, result *cv.MatchResult) locateOutput {
	center := result.Center()
	return locateOutput{
		Needle:      name,
		Found:       result.Found,
		X:           result.Location.X,
		Y:           result.Location.Y,
		Width:       result.Size.X,
		Height:      result.Size.Y,
		CenterX:     center.X,
		CenterY:     center.Y,
		Score:       result.Score,
		Similarity:  result.Similarity,
		Confidence:  result.Confidence,
		Comparisons: result.Comparisons,
	}
}

func printLocateResult(cmd *cobra.Command, name string, result *cv.MatchResult) {
	out := cmd.OutOrStdout()
	printSection(out, "Locate "+name)

	if result.Found {
		printSuccess(out, "Found")
	} else {
		printWarning(out, "Best candidate below confidence")
	}

	center := result.Center()
	printLabelValue(out, "Location", fmt.Sprintf("%d,%d", result.Location.X, result.Location.Y))
	printLabelValue(out, "Size", fmt.Sprintf("%dx%d", result.Size.X, result.Size.Y))
	printLabelValue(out, "Center", fmt.Sprintf("%d,%d", center.X, center.Y))
	printLabelValue(out, "Similarity", fmt.Sprintf("%.4f (score %d, need %.4f)", result.Similarity, result.Score, result.Confidence))
	printLabelValue(out, "Comparisons", fmt.Sprintf("%d", result.Comparisons))
}
