// Command pdfuploader uploads converted PDFs from a watch directory into the
// record store and files them by outcome.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phsayre/pdf-uploader/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pdfuploader",
	Short: "Upload converted PDFs into the record store",
	Long: `pdfuploader scans a watch directory for files produced by the PDF
converter. Each file is matched to its record by file name (without
extension). Eligible files are streamed into the record store and archived;
flagged files, failed uploads and files that were already uploaded are moved
to quarantine and reported to the operator by email.

Configuration is read from --config (yaml, toml or json), then from
PDFUPLOADER_* environment variables (e.g. PDFUPLOADER_DATABASE_URL), then from
flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (yaml, toml or json)")
	rootCmd.PersistentFlags().String("log-mode", "", "Log routing: none, file, console, both (or 0-3)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("db-driver", "", "Record store driver: postgres or sqlite")
	rootCmd.PersistentFlags().String("db-url", "", "Record store DSN or sqlite file path")

	rootCmd.AddGroup(
		&cobra.Group{ID: "passes", Title: "Upload Passes:"},
		&cobra.Group{ID: "records", Title: "Record Store:"},
	)
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"log-mode":      "log.mode",
	"log-level":     "log.level",
	"db-driver":     "database.driver",
	"db-url":        "database.url",
	"watch-dir":     "watch_dir",
	"archive-dir":   "archive_dir",
	"error-dir":     "error_dir",
	"duplicate-dir": "duplicate_dir",
	"interval":      "daemon.interval",
	"looper":        "daemon.looper_path",
	"watch":         "daemon.watch",
	"port":          "dashboard.port",
}

// newViper reads the config file and binds the flags cmd defines.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return nil, err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
	}
	return v, nil
}

// loadConfig loads and validates the full configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}
	return config.Load(v)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
