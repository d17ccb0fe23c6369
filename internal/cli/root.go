package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jordanella.com/autogui/internal/config"
	"jordanella.com/autogui/internal/logging"
)

// defaultConfigFile is read when present and no --config is given
const defaultConfigFile = "autogui.ini"

var (
	// Global flags
	jsonOutput bool

	// settings overlays flags and AUTOGUI_* environment variables on the ini file
	settings = viper.New()

	appConfig *config.Config
	logCloser io.Closer
)

// rootCmd is the root command for autogui
var rootCmd = &cobra.Command{
	Use:     "autogui",
	Version: "dev",
	Short:   "Locate images on screen and move the pointer",
	Long: `autogui finds reference images on the screen by brute-force pixel comparison
and moves the pointer along a paced, pixel-by-pixel path.

It drives either the local desktop or an Android device over adb.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// SetVersion sets the version printed by --version
func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the root command and closes the log file it opened, whether
// or not the command succeeded
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if closeErr := closeLog(); err == nil {
		err = closeErr
	}
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to the ini config file (default ./"+defaultConfigFile+" when present)")
	flags.String("backend", "", "Capture and pointer backend: desktop or adb")
	flags.String("device", "", "adb device serial or host:port")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("db", "", "Path to the history database")
	flags.Bool("no-db", false, "Do not record history")
	flags.String("templates", "", "Directory of needle YAML files")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	bindFlag("config", "config")
	bindFlag("capture.backend", "backend")
	bindFlag("adb.device", "device")
	bindFlag("logging.level", "log-level")
	bindFlag("database.path", "db")
	bindFlag("database.disabled", "no-db")
	bindFlag("templates.dir", "templates")

	settings.SetEnvPrefix("AUTOGUI")
	settings.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	settings.AutomaticEnv()

	rootCmd.AddGroup(&cobra.Group{
		ID:    "automation",
		Title: "Automation:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "inspection",
		Title: "Inspection:",
	})

	rootCmd.AddCommand(locateCmd, moveCmd, captureCmd, historyCmd, templatesCmd, configCmd)
}

func bindFlag(key, flag string) {
	if err := settings.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// loadConfig reads the ini file and applies flag and environment overrides
func loadConfig(cmd *cobra.Command, args []string) error {
	path := settings.GetString("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.LoadFromINI(path)
	if err != nil {
		return err
	}
	applyOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := logging.Configure(cfg.LoggingOptions())
	if err != nil {
		return err
	}

	appConfig = cfg
	logCloser = closer
	return nil
}

func applyOverrides(cfg *config.Config) {
	if settings.IsSet("capture.backend") {
		cfg.Capture.Backend = settings.GetString("capture.backend")
	}
	if settings.IsSet("adb.path") {
		cfg.ADB.Path = settings.GetString("adb.path")
	}
	if settings.IsSet("adb.device") {
		cfg.ADB.Device = settings.GetString("adb.device")
	}
	if settings.IsSet("logging.level") {
		cfg.Logging.Level = settings.GetString("logging.level")
	}
	if settings.IsSet("database.path") {
		cfg.Database.Path = settings.GetString("database.path")
	}
	if settings.GetBool("database.disabled") {
		cfg.Database.Enabled = false
	}
	if settings.IsSet("templates.dir") {
		cfg.Templates.Dir = settings.GetString("templates.dir")
	}
}

func closeLog() error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}
