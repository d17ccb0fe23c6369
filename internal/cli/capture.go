package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"jordanella.com/autogui/internal/cv"
)

var captureOpts struct {
	region string
}

var captureCmd = &cobra.Command{
	Use:     "capture [path]",
	Short:   "Save a screenshot",
	GroupID: "inspection",
	Long: `Capture the screen, or part of it, and save it as a PNG.

Without a path the file goes to the configured screenshot directory.`,
	Example: `  autogui capture
  autogui capture button.png --region 100,200,64,32`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&captureOpts.region, "region", "", "Capture only x,y,width,height")
}

func runCapture(cmd *cobra.Command, args []string) error {
	var region *cv.Region
	if captureOpts.region != "" {
		r, err := parseRegion(captureOpts.region)
		if err != nil {
			return err
		}
		region = r
	}

	a, err := newApp(appConfig)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(); err != nil {
		return err
	}

	path := filepath.Join(a.cfg.Capture.SaveDir,
		fmt.Sprintf("capture_%s.png", time.Now().Format("20060102_150405")))
	if len(args) == 1 {
		path = args[0]
	}

	frame, err := a.service.Screenshot(region, "")
	if err != nil {
		return err
	}
	if !a.service.SaveFrame(frame, path) {
		return fmt.Errorf("%w: %s", cv.ErrSave, path)
	}

	out := cmd.OutOrStdout()
	bounds := frame.Bounds()
	if jsonOutput {
		return outputJSON(out, map[string]interface{}{
			"path":   path,
			"width":  bounds.Dx(),
			"height": bounds.Dy(),
		})
	}
	printSuccess(out, fmt.Sprintf("Saved %dx%d capture to %s", bounds.Dx(), bounds.Dy(), path))
	return nil
}
