package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "passes",
	Short:   "Run one upload pass over the watch directory",
	Long: `Run a single pass:

  1. List the watch directory (files only, in directory order)
  2. Classify each file against its record
  3. Upload eligible files and archive them
  4. Quarantine flagged files, failed uploads and duplicates
  5. Email one report for failures and one for duplicates

A file whose record cannot be read is left in place for the next pass.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fatalf("%v", err)
		}

		ctx := context.Background()
		a, err := newApp(ctx, cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		runner, err := a.runner(nil)
		if err != nil {
			fatalf("%v", err)
		}

		res, err := runner.Run(ctx)
		if err != nil {
			fatalf("pass failed: %v", err)
		}

		if res.Files() == 0 {
			fmt.Println("Nothing to upload")
			return
		}
		fmt.Printf("Pass %s complete in %v\n", res.RunID, res.Duration.Round(time.Millisecond))
		fmt.Printf("   Uploaded:   %d\n", res.Uploaded)
		fmt.Printf("   Failed:     %d\n", len(res.FailedUploads))
		fmt.Printf("   Duplicates: %d\n", len(res.AlreadyConverted))
		if len(res.Skipped) > 0 {
			fmt.Printf("   Skipped:    %d (left for the next pass)\n", len(res.Skipped))
		}
		for _, an := range res.Anomalies {
			fmt.Printf("   Anomaly: %s %s: %s\n", an.Identifier, an.Path, an.Detail)
		}
	},
}

func addDirFlags(cmd *cobra.Command) {
	cmd.Flags().String("watch-dir", "", "Directory scanned for converted files")
	cmd.Flags().String("archive-dir", "", "Directory receiving uploaded files")
	cmd.Flags().String("error-dir", "", "Directory receiving failed files")
	cmd.Flags().String("duplicate-dir", "", "Directory receiving duplicates (default: error dir)")
}

func init() {
	addDirFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
