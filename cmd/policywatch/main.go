// Command policywatch runs scheduled checks of immigration-policy
// sources and alerts subscribers by email when a change is detected.
// Grounded on core/cmd/helm/main.go's Run(args, stdout, stderr) int
// dispatch pattern, trimmed to the two subcommands this pipeline
// needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/lighthouse-labs/policywatch/pkg/alert"
	"github.com/lighthouse-labs/policywatch/pkg/config"
	"github.com/lighthouse-labs/policywatch/pkg/fetch"
	"github.com/lighthouse-labs/policywatch/pkg/lease"
	"github.com/lighthouse-labs/policywatch/pkg/logging"
	"github.com/lighthouse-labs/policywatch/pkg/metrics"
	"github.com/lighthouse-labs/policywatch/pkg/registry"
	"github.com/lighthouse-labs/policywatch/pkg/scheduler"
	"github.com/lighthouse-labs/policywatch/pkg/source"
	"github.com/lighthouse-labs/policywatch/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing: it never calls os.Exit itself.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "run-daily":
		return runBatch(args[2:], stderr, source.FrequencyDaily)
	case "run-weekly":
		return runBatch(args[2:], stderr, source.FrequencyWeekly)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: policywatch <run-daily|run-weekly> [flags]")
}

func runBatch(args []string, stderr io.Writer, freq source.Frequency) int {
	fs := flag.NewFlagSet(string(freq), flag.ContinueOnError)
	devLog := fs.Bool("dev", false, "human-readable logs instead of JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, *devLog)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("open store", "error", err)
		return 1
	}

	mp, err := metrics.New()
	if err != nil {
		logger.Error("init metrics", "error", err)
		return 1
	}
	defer mp.Shutdown(ctx)

	client := fetch.NewClient(cfg.FetchTimeout, cfg.MaxRetries, cfg.RetryBase, cfg.UserAgent)
	reg := registry.New()

	var sender alert.EmailSender
	if cfg.SMTPAddr != "" {
		sender = alert.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPFrom, nil)
	} else {
		sender = alert.NewInMemorySender()
		logger.Warn("SMTP_ADDR unset, alerts will not be delivered")
	}
	engine := alert.New(st, sender)

	sched := scheduler.New(st, client, reg, engine, mp, logger, cfg.WorkerConcurrency, cfg.SourceDeadline)

	if cfg.LeaseEnabled {
		held, release, ok := acquireLease(ctx, cfg, string(freq), logger)
		if !ok {
			logger.Info("lease held elsewhere, skipping run", "frequency", freq)
			return 0
		}
		if held {
			defer release()
		}
	}

	var (
		result scheduler.JobResult
		runErr error
	)
	switch freq {
	case source.FrequencyWeekly:
		result, runErr = sched.RunWeekly(ctx)
	default:
		result, runErr = sched.RunDaily(ctx)
	}
	if runErr != nil {
		logger.Error("batch run failed", "error", runErr)
		return 1
	}

	logger.Info("batch run complete",
		"frequency", freq,
		"sources_processed", result.SourcesProcessed,
		"sources_succeeded", result.SourcesSucceeded,
		"sources_failed", result.SourcesFailed,
		"changes_detected", result.ChangesDetected,
		"alerts_sent", result.AlertsSent,
		"duration", result.CompletedAt.Sub(result.StartedAt),
	)
	for _, e := range result.Errors {
		logger.Error("source processing error", "error", e)
	}
	return 0
}

func acquireLease(ctx context.Context, cfg *config.Config, name string, logger interface {
	Error(msg string, args ...any)
}) (held bool, release func(), ok bool) {
	mgr, err := lease.NewManager(cfg.RedisURL)
	if err != nil {
		logger.Error("build lease manager", "error", err)
		return false, nil, true
	}

	l, acquired, err := mgr.Acquire(ctx, name, cfg.LeaseTTL)
	if err != nil {
		logger.Error("acquire lease", "error", err)
		return false, nil, true
	}
	if !acquired {
		return false, nil, false
	}

	return true, func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Release(releaseCtx)
	}, true
}
