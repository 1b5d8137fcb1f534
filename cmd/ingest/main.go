// Command ingest refreshes the dataset tables outside the HTTP server.
//
//	ingest fetch            download the raw CSVs from blob storage
//	ingest load --dir DIR   replace the tables from CSVs already on disk
//	ingest run              fetch, then load
//	ingest lookup HSHD_NUM  print one household's joined records
//
// The exit code is non-zero when any table failed to load.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/sakif/retail-analytics/internal/blob"
	"github.com/sakif/retail-analytics/internal/config"
	"github.com/sakif/retail-analytics/internal/repository/sqldb"
	"github.com/sakif/retail-analytics/internal/server"
	"github.com/sakif/retail-analytics/internal/service"
)

const (
	envFileFlag = "env-file"
	dirFlag     = "dir"
	prefixFlag  = "prefix"
	capFlag     = "transaction-cap"
	outputFlag  = "output"
)

// errFailedTables marks a run that completed with per-table failures.
var errFailedTables = errors.New("one or more tables failed to load")

func commonFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		envFileFlag: &cobraflags.StringFlag{
			Name:  envFileFlag,
			Value: ".env",
			Usage: "dotenv file to read before the environment",
		},
		outputFlag: &cobraflags.StringFlag{
			Name:  outputFlag,
			Value: "table",
			Usage: "output format: table or json",
		},
	}
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailedTables) {
			fmt.Fprintln(os.Stderr, "ingest:", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Load the households, products and transactions tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newFetchCommand(),
		newLoadCommand(),
		newRunCommand(),
		newLookupCommand(),
	)
	return root
}

// env is what every subcommand needs: config, logger and, on demand, the
// stores.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	format string
}

func loadEnv(cmd *cobra.Command, flags map[string]cobraflags.Flag) (*env, error) {
	cfg, err := config.Load(flags[envFileFlag].GetString())
	if err != nil {
		return nil, err
	}
	if f, ok := flags[prefixFlag]; ok && cmd.Flags().Changed(prefixFlag) {
		cfg.BlobPrefix = f.GetString()
	}
	if f, ok := flags[capFlag]; ok && cmd.Flags().Changed(capFlag) {
		n, err := strconv.Atoi(f.GetString())
		if err != nil || n < 0 {
			return nil, fmt.Errorf("--%s must be a non-negative integer, got %q", capFlag, f.GetString())
		}
		cfg.TransactionCap = n
	}

	format := flags[outputFlag].GetString()
	if format != "table" && format != "json" {
		return nil, fmt.Errorf("--%s must be table or json, got %q", outputFlag, format)
	}

	return &env{
		cfg:    cfg,
		logger: cfg.NewLogger(os.Stderr),
		out:    cmd.OutOrStdout(),
		format: format,
	}, nil
}

func (e *env) openStore(ctx context.Context) (*sqldb.DB, error) {
	return sqldb.New(ctx, e.cfg.StoreDSN, sqldb.Options{
		Retry:   e.cfg.Retry(),
		Timeout: e.cfg.IOTimeout,
		Logger:  e.logger,
	})
}

func (e *env) openBlobs(ctx context.Context) (blob.Store, error) {
	if e.cfg.BlobConnection == "" {
		return nil, errors.New("BLOB_CONNECTION_STRING is not set")
	}
	return blob.New(ctx, e.cfg.BlobConnection, e.cfg.BlobContainer)
}

// ===== fetch =====

func newFetchCommand() *cobra.Command {
	flags := commonFlags()
	flags[prefixFlag] = &cobraflags.StringFlag{Name: prefixFlag, Usage: "only download blobs under this prefix"}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download every blob of the container into the staging directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd, flags)
			if err != nil {
				return err
			}
			blobs, err := e.openBlobs(cmd.Context())
			if err != nil {
				return err
			}
			defer blobs.Close()

			// fetch never touches the store
			svc := service.NewIngestService(nil, blobs, server.IngestOptions(e.cfg, e.logger), e.logger)
			paths, err := svc.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			return e.printPaths(paths)
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

// ===== load =====

func newLoadCommand() *cobra.Command {
	flags := commonFlags()
	flags[dirFlag] = &cobraflags.StringFlag{Name: dirFlag, Usage: "directory holding the CSVs (default: STAGING_DIR)"}
	flags[capFlag] = &cobraflags.StringFlag{Name: capFlag, Usage: "keep only the first N transactions (0 keeps all)"}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Replace the tables from CSV files on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd, flags)
			if err != nil {
				return err
			}
			db, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			dir := flags[dirFlag].GetString()
			if dir == "" {
				dir = e.cfg.StagingDir
			}
			svc := service.NewIngestService(db, nil, server.IngestOptions(e.cfg, e.logger), e.logger)
			res, err := svc.LoadDir(cmd.Context(), dir)
			if err != nil {
				return err
			}
			return e.printRun(res)
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

// ===== run =====

func newRunCommand() *cobra.Command {
	flags := commonFlags()
	flags[prefixFlag] = &cobraflags.StringFlag{Name: prefixFlag, Usage: "only download blobs under this prefix"}
	flags[capFlag] = &cobraflags.StringFlag{Name: capFlag, Usage: "keep only the first N transactions (0 keeps all)"}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch from blob storage, then replace the tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd, flags)
			if err != nil {
				return err
			}
			blobs, err := e.openBlobs(cmd.Context())
			if err != nil {
				return err
			}
			defer blobs.Close()
			db, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			svc := service.NewIngestService(db, blobs, server.IngestOptions(e.cfg, e.logger), e.logger)
			res, err := svc.Run(cmd.Context())
			if err != nil {
				return err
			}
			return e.printRun(res)
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

// ===== lookup =====

func newLookupCommand() *cobra.Command {
	flags := commonFlags()

	cmd := &cobra.Command{
		Use:   "lookup HSHD_NUM",
		Short: "Print every purchase of one household",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, flags)
			if err != nil {
				return err
			}
			db, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := service.NewHouseholdService(db, e.logger).Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if e.format == "json" {
				return writeJSON(e.out, res)
			}
			tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			for i, c := range res.Columns {
				if i > 0 {
					fmt.Fprint(tw, "\t")
				}
				fmt.Fprint(tw, c)
			}
			fmt.Fprintln(tw)
			for _, row := range res.Rows {
				for i, v := range row {
					if i > 0 {
						fmt.Fprint(tw, "\t")
					}
					if v != nil {
						fmt.Fprint(tw, v)
					}
				}
				fmt.Fprintln(tw)
			}
			fmt.Fprintf(tw, "(%d rows)\n", res.Len())
			return tw.Flush()
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

// ===== output =====

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *env) printPaths(paths []string) error {
	if e.format == "json" {
		return writeJSON(e.out, paths)
	}
	for _, p := range paths {
		fmt.Fprintln(e.out, p)
	}
	fmt.Fprintf(e.out, "%d files staged in %s\n", len(paths), e.cfg.StagingDir)
	return nil
}

func (e *env) printRun(res *service.RunResult) error {
	if e.format == "json" {
		if err := writeJSON(e.out, res); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TABLE\tSOURCE\tSTATUS\tROWS\tBATCHES\tDURATION")
		for _, t := range res.Tables {
			status := "ok"
			if !t.OK {
				status = "FAILED: " + t.Error
				if t.Err != nil {
					// operators get the full cause
					status = "FAILED: " + t.Err.Error()
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", t.Table, t.Source, status, t.Rows, t.Batches, t.Duration.Round(time.Millisecond))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, t := range res.Tables {
			for _, w := range t.Warnings {
				fmt.Fprintf(e.out, "warning: %s: %s\n", t.Table, w)
			}
		}
		if o := res.Orphans; o != nil {
			fmt.Fprintf(e.out, "orphan transactions: %d without household, %d without product\n", o.Households, o.Products)
		}
	}
	if !res.OK() {
		return errFailedTables
	}
	return nil
}
