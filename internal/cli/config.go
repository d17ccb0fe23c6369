package cli

import (
	"github.com/spf13/cobra"

	"jordanella.com/autogui/internal/config"
)

var configOpts struct {
	write string
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Show the effective configuration",
	GroupID: "inspection",
	Long: `Print the configuration after the ini file, environment variables and
flags have been applied, in ini form.

With --write the same settings are saved to a file that can be passed
back with --config.`,
	Example: `  autogui config
  autogui --backend adb --device 127.0.0.1:5555 config --write autogui.ini`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringVar(&configOpts.write, "write", "", "Save the configuration to this ini file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if configOpts.write != "" {
		if err := config.SaveToINI(appConfig, configOpts.write); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(out, map[string]string{"written": configOpts.write})
		}
		printSuccess(out, "Saved configuration to "+configOpts.write)
		return nil
	}

	if jsonOutput {
		return outputJSON(out, appConfig)
	}
	return config.WriteINI(appConfig, out)
}
