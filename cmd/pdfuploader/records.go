package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/phsayre/pdf-uploader/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:     "records",
	GroupID: "records",
	Short:   "Inspect and seed conversion records",
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <id>...",
	Short: "Print the status fields of records as JSON",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st := openStore(cmd)
		defer st.Close()

		ctx := context.Background()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		failed := false
		for _, id := range args {
			rec, err := store.Get(ctx, st, id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s: %v\n", id, err)
				failed = true
				continue
			}
			_ = enc.Encode(rec)
		}
		if failed {
			os.Exit(1)
		}
	},
}

var recordsSeedCmd = &cobra.Command{
	Use:   "seed <id>...",
	Short: "Create or reset records in the embedded store",
	Long: `Create or reset records in a sqlite record store.

The production store is owned by the converter; seeding is only supported for
the embedded sqlite store used for local runs.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db := openSQLite(cmd)
		defer db.Close()

		converted, _ := cmd.Flags().GetBool("converted")
		msg, _ := cmd.Flags().GetString("error")

		ctx := context.Background()
		for _, id := range args {
			rec := store.Record{
				ID:                id,
				Converted:         converted,
				ConverterError:    msg != "",
				ConverterErrorMsg: msg,
			}
			if err := db.PutRecord(ctx, rec); err != nil {
				fatalf("%v", err)
			}
		}
		fmt.Printf("Seeded %d record(s) in %s\n", len(args), db.Path())
	},
}

var recordsImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import records from a JSONL file into the embedded store",
	Long: `Import records from a JSONL file, one record per line:

  {"id":"1001","converted":false,"converter_error":false,"converter_errormsg":""}

Existing records with the same id are replaced.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db := openSQLite(cmd)
		defer db.Close()

		result, err := store.ImportJSONLFile(context.Background(), db, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Imported %d record(s)\n", result.RecordsImported)
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", e)
		}
	},
}

// openStore opens the configured record store without requiring the
// directory settings a pass needs.
func openStore(cmd *cobra.Command) store.Store {
	v, err := newViper(cmd)
	if err != nil {
		fatalf("%v", err)
	}
	opts := store.Options{
		Driver:        v.GetString("database.driver"),
		URL:           v.GetString("database.url"),
		Schema:        v.GetString("database.schema"),
		ItemsTable:    v.GetString("database.items_table"),
		WriteFunction: v.GetString("database.write_function"),
	}
	if opts.URL == "" {
		fatalf("database.url is required")
	}
	st, err := store.Open(context.Background(), opts)
	if err != nil {
		fatalf("failed to open record store: %v", err)
	}
	return st
}

func openSQLite(cmd *cobra.Command) *store.SQLite {
	st := openStore(cmd)
	db, ok := st.(*store.SQLite)
	if !ok {
		_ = st.Close()
		fatalf("this command requires the sqlite driver")
	}
	return db
}

func init() {
	recordsSeedCmd.Flags().Bool("converted", false, "Mark the records as already uploaded")
	recordsSeedCmd.Flags().String("error", "", "Flag the records with this converter error message")

	recordsCmd.AddCommand(recordsShowCmd, recordsSeedCmd, recordsImportCmd)
	rootCmd.AddCommand(recordsCmd)
}
