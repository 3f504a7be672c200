package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"github.com/brendan-ward/gdalprogress/internal/config"
	"github.com/brendan-ward/gdalprogress/internal/logging"
	"github.com/brendan-ward/gdalprogress/internal/metrics"
	"github.com/brendan-ward/gdalprogress/journal"
	"github.com/brendan-ward/gdalprogress/nativeop"
	"github.com/brendan-ward/gdalprogress/progress"
	"github.com/go-chi/chi/v5"
	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run [NAME...]",
	Short: "Run simulated native operations that report progress through Go callbacks",
	Long: `Run one native operation per NAME (or --workers operations when no names
are given) concurrently. Each operation reports progress through the native
progress callback; --cancel-at cancels operations once they reach a fraction,
and an interrupt cancels all of them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}

		names := args
		if len(names) == 0 {
			names = make([]string, cfg.Workers)
			for i := range names {
				names[i] = fmt.Sprintf("op-%d", i+1)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return run(ctx, cfg, names)
	},
	SilenceUsage: true,
}

func init() {
	runCmd.Flags().IntP("steps", "s", 100, "number of steps of each operation")
	runCmd.Flags().IntP("workers", "w", 1, "number of operations when no names are given")
	runCmd.Flags().Duration("delay", 20*time.Millisecond, "time taken by each step")
	runCmd.Flags().Float64("cancel-at", -1, "cancel operations once they report this fraction; negative never cancels")
	runCmd.Flags().StringP("message", "m", "", "message reported with each step")
	runCmd.Flags().StringP("journal", "j", "", "record progress events into this sqlite file (.db)")
	runCmd.Flags().String("feather", "", "export journaled events of each operation to DIR/NAME.feather (requires --journal)")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
}

type outcome struct {
	name   string
	status string
	result nativeop.Result
	err    error
}

// display returns a progress Func per operation, and a function to stop
// rendering once all operations are done.
func display(names []string, steps int) ([]progress.Func, func()) {
	fns := make([]progress.Func, len(names))

	if len(names) == 1 {
		fns[0] = progress.NewTerm(os.Stderr)
		return fns, func() { fmt.Fprintln(os.Stderr) }
	}

	p := uiprogress.New()
	p.SetOut(os.Stderr)
	p.Start()

	for i, name := range names {
		n := name
		bar := p.AddBar(steps).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			return fmt.Sprintf("%-10s (%6v/%6v)", n, b.Current(), steps)
		})
		fns[i] = func(complete float64, message string, arg interface{}) bool {
			bar.Set(int(complete * float64(steps)))
			return true
		}
	}

	return fns, p.Stop
}

func run(ctx context.Context, cfg *config.Config, names []string) error {
	logger, err := logging.New(cfg.Verbose, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	progress.SetLogger(logger)
	defer progress.SetLogger(nil)

	metrics.Init()
	if cfg.MetricsAddr != "" {
		r := chi.NewRouter()
		r.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	var j *journal.Journal
	if cfg.Journal != "" {
		j, err = journal.Open(cfg.Journal, len(names), logger)
		if err != nil {
			return err
		}
		defer j.Close()
	}

	outcomes, err := execute(ctx, cfg, names, logger, j)
	if err != nil {
		return err
	}

	if cfg.Feather != "" {
		if err := exportFeather(j, cfg.Feather, names); err != nil {
			return err
		}
	}

	var failed error
	for _, o := range outcomes {
		fmt.Printf("%s: %s at %.0f%% after %d progress calls\n", o.name, o.status, o.result.Complete*100, o.result.Calls)
		if o.status == metrics.StatusFailed && failed == nil {
			failed = fmt.Errorf("operation %s failed: %w", o.name, o.err)
		}
	}
	if failed != nil {
		return failed
	}

	return ctx.Err()
}

// execute runs one native operation per name concurrently and returns their
// outcomes in the order of names. Events are recorded into j unless it is nil.
func execute(ctx context.Context, cfg *config.Config, names []string, logger *zap.Logger, j *journal.Journal) ([]outcome, error) {
	decision := func(complete float64, message string, arg interface{}) bool {
		return cfg.CancelAt < 0 || complete < cfg.CancelAt
	}

	handlers, stopDisplay := display(names, cfg.Steps)
	fns := make([]progress.Func, len(names))
	for i, name := range names {
		fn := progress.Latch(progress.WithContext(ctx, progress.Chain(handlers[i], decision)))
		if j != nil {
			var err error
			if fn, err = j.Handler(name, fn); err != nil {
				stopDisplay()
				return nil, err
			}
		}
		fns[i] = fn
	}

	outcomes := make([]outcome, len(names))
	var wg sync.WaitGroup

	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()

			o := outcome{name: name}
			o.err = progress.With(fns[i], name, func(pfn, arg unsafe.Pointer) error {
				var err error
				o.result, err = nativeop.Run(pfn, arg, cfg.Steps, cfg.Message, cfg.Delay)
				return err
			})

			switch {
			case o.err == nil:
				o.status = metrics.StatusCompleted
			case errors.Is(o.err, nativeop.ErrUserTerminated):
				o.status = metrics.StatusTerminated
			default:
				o.status = metrics.StatusFailed
			}
			metrics.ObserveOperation(o.status)
			logger.Debug("operation finished",
				zap.String("name", name),
				zap.String("status", o.status),
				zap.Int("calls", o.result.Calls),
				zap.Float64("complete", o.result.Complete),
			)

			outcomes[i] = o
		}(i, name)
	}

	wg.Wait()
	stopDisplay()

	return outcomes, nil
}

// exportFeather writes the journaled events of each operation to
// dir/<name>.feather.
func exportFeather(j *journal.Journal, dir string, names []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create feather directory: %w", err)
	}

	for _, name := range names {
		f, err := os.Create(filepath.Join(dir, name+".feather"))
		if err != nil {
			return err
		}
		err = j.WriteFeather(name, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("could not export run %q: %w", name, err)
		}
	}
	return nil
}
