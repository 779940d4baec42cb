package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
)

var (
	ingestDir    string
	ingestFromDB bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index documents into the vector store",
	Long: `Index documents into the vector store.

Documents come from a directory of text files (--dir) or from the Postgres
table configured under ingest.database (--from-db). Each document is chunked,
embedded and upserted; failed documents are reported without aborting the run.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "directory of documents to index")
	ingestCmd.Flags().BoolVar(&ingestFromDB, "from-db", false, "index rows from the configured database table")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestDir == "" && !ingestFromDB {
		return fmt.Errorf("either --dir or --from-db is required")
	}

	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		docs     []ingest.Document
		failures []ingest.Failure
	)
	switch {
	case ingestDir != "":
		docs, failures, err = ingest.ScanDir(ingestDir, app.logger)
		if err != nil {
			return err
		}
	case ingestFromDB:
		dbCfg := app.cfg.Ingest.Database
		if !dbCfg.URL.IsSet() {
			return fmt.Errorf("ingest.database.url is not configured")
		}
		source, err := ingest.NewDatabaseSource(ctx, dbCfg.URL.Value(), dbCfg.Table, dbCfg.TextColumns, app.logger)
		if err != nil {
			return err
		}
		defer source.Close()
		docs, failures, err = source.Load(ctx)
		if err != nil {
			return err
		}
	}

	report, err := app.pipeline.Ingest(ctx, docs, failures)
	if err != nil {
		return err
	}
	if report.DocumentsFailed > 0 {
		app.logger.Warn("some documents failed to ingest",
			zap.Int("failed", report.DocumentsFailed))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
