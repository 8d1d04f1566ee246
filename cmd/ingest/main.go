// Command ingest loads timesheet workbooks from a local store without the
// HTTP server: one pipeline run per object, a bounded number at a time, with
// one JSON report per object on stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/profilefile"
	"github.com/JonMunkholm/sheetload/internal/runlog"
	"github.com/JonMunkholm/sheetload/internal/sink"
	"github.com/JonMunkholm/sheetload/internal/source"
	"github.com/JonMunkholm/sheetload/internal/trigger"
)

// errFatalRuns makes the process exit non-zero after all reports are written.
var errFatalRuns = errors.New("one or more runs failed")

type globalOptions struct {
	profilesDir string
	logLevel    string
}

func main() {
	_ = godotenv.Load()

	var global globalOptions
	rootCmd := &cobra.Command{
		Use:           "ingest",
		Short:         "Load timesheet workbooks into the warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupWriter(os.Stderr, global.logLevel, "text")
		},
	}
	rootCmd.PersistentFlags().StringVar(&global.profilesDir, "profiles", os.Getenv("INGEST_PROFILES_DIR"), "Directory of .hcl profile files")
	rootCmd.PersistentFlags().StringVar(&global.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newRunCmd(&global),
		newProfilesCmd(&global),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runOptions struct {
	root          string
	container     string
	profile       string
	sheet         string
	parallel      int
	referenceYear int
	dryRun        bool
	out           string
	record        bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [file...]",
		Short: "Run the pipeline for files under the store root",
		Long: `Run the pipeline for each file. Files must live under <root>/<container>/;
their path below the container decides the profile unless --profile is set.
With no files, every object in the container is processed.

Records go to PostgreSQL (DATABASE_URL) unless --dry-run is set, in which case
they are written as JSON lines to --out.

Example: ingest run --root ./data data/uploads/entrada/horas/jan.xlsx --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), global, opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.root, "root", envOr("INGEST_STORE_ROOT", "./data"), "Store root directory")
	cmd.Flags().StringVar(&opts.container, "container", envOr("INGEST_CONTAINER", "uploads"), "Container to list when no files are given")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "Run every file under this profile instead of matching by path")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "Sheet name override")
	cmd.Flags().IntVar(&opts.parallel, "parallel", core.DefaultMaxConcurrentInvocations, "Maximum concurrent runs")
	cmd.Flags().IntVar(&opts.referenceYear, "reference-year", 0, "Year for two-digit year correction (default: current year)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Write records as JSON lines instead of loading them")
	cmd.Flags().StringVar(&opts.out, "out", "-", "Dry-run record output file; - writes records to stdout and reports to stderr")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Store runs in the run log (needs DATABASE_URL)")

	return cmd
}

func newProfilesCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the registered profiles as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := profilefile.LoadRegistry(cmd.Context(), global.profilesDir)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(registry.All())
		},
	}
}

func runIngest(ctx context.Context, global *globalOptions, opts runOptions, files []string, stdout, stderr io.Writer) error {
	if opts.parallel <= 0 {
		return fmt.Errorf("--parallel must be positive")
	}
	if opts.dryRun && opts.record {
		return fmt.Errorf("--record cannot be combined with --dry-run")
	}

	registry, err := profilefile.LoadRegistry(ctx, global.profilesDir)
	if err != nil {
		return err
	}

	store := source.NewDirStore(opts.root)
	notes, err := collectNotifications(ctx, store, opts.container, files)
	if err != nil {
		return err
	}

	var (
		target      core.Sink
		dispatchOpt []trigger.DispatcherOption
		reportOut   = stdout
	)
	if opts.dryRun {
		w := stdout
		if opts.out != "" && opts.out != "-" {
			f, err := os.Create(opts.out)
			if err != nil {
				return fmt.Errorf("create %s: %w", opts.out, err)
			}
			defer f.Close()
			w = f
		} else {
			reportOut = stderr
		}
		target = sink.NewJSONLines(w)
	} else {
		url := os.Getenv("DATABASE_URL")
		if url == "" {
			return fmt.Errorf("DATABASE_URL is required unless --dry-run is set")
		}
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		target = sink.NewPostgres(pool)

		if opts.record {
			runs := runlog.New(pool)
			if err := runs.EnsureSchema(ctx); err != nil {
				return err
			}
			dispatchOpt = append(dispatchOpt, trigger.WithRecorder(runs))
		}
	}

	if opts.profile != "" {
		p, err := registry.Get(opts.profile)
		if err != nil {
			return err
		}
		if opts.sheet != "" {
			p.Sheet = opts.sheet
		}
		dispatchOpt = append(dispatchOpt, trigger.WithProfile(p))
	} else if opts.sheet != "" {
		return fmt.Errorf("--sheet needs --profile")
	}

	var pipeOpts []core.PipelineOption
	if opts.referenceYear > 0 {
		pipeOpts = append(pipeOpts, core.WithReferenceYear(opts.referenceYear))
	}
	src := source.New(store)
	dispatcher := trigger.NewDispatcher(registry, core.NewPipeline(src, target, pipeOpts...), dispatchOpt...)

	reports := dispatchAll(ctx, dispatcher, notes, opts.parallel)

	enc := json.NewEncoder(reportOut)
	fatal := 0
	for _, r := range reports {
		if r.Status == core.StatusFatal {
			fatal++
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fatal > 0 {
		return fmt.Errorf("%w: %d of %d", errFatalRuns, fatal, len(reports))
	}
	return nil
}

// dispatchAll handles every notification with at most parallel in flight and
// returns the reports in input order.
func dispatchAll(ctx context.Context, h trigger.Handler, notes []trigger.Notification, parallel int) []trigger.Report {
	ctx = logging.ContextWithOrigin(ctx, "cli")
	reports := make([]trigger.Report, len(notes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, n := range notes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				reports[i] = trigger.Report{Status: core.StatusFatal, Bucket: n.Bucket, Name: n.ObjectPath(), Err: err}
				return nil
			}
			reports[i] = h.Handle(gctx, n)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// collectNotifications turns file arguments into notifications, or lists the
// container when there are none.
func collectNotifications(ctx context.Context, store *source.DirStore, container string, files []string) ([]trigger.Notification, error) {
	if len(files) == 0 {
		objects, err := store.List(ctx, container, "")
		if err != nil {
			return nil, err
		}
		notes := make([]trigger.Notification, len(objects))
		for i, obj := range objects {
			notes[i] = trigger.NotificationFor(obj.Container, obj.Path)
		}
		return notes, nil
	}

	root, err := filepath.Abs(store.Root)
	if err != nil {
		return nil, err
	}
	abs := source.NewDirStore(root)

	notes := make([]trigger.Notification, 0, len(files))
	for _, f := range files {
		p, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		c, objectPath, ok := abs.Locate(p)
		if !ok {
			return nil, fmt.Errorf("%s is not under %s/<container>/", f, store.Root)
		}
		notes = append(notes, trigger.NotificationFor(c, objectPath))
	}
	return notes, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
