// Command backpressure fetches paths from a configured service through the
// rate-limited, retrying client and prints the JSON results.
//
//	backpressure --config backpressure.jsonc --service github [--concurrency N]
//	    [--retries N] [--timeout D] [--cache] path...
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
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/LavishGent/backpressure/internal/metrics"
	"github.com/LavishGent/backpressure/pkg/backpressure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// result is one line of output. Exactly one of Value and Error is set.
type result struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

type cliOptions struct {
	configPath  string
	service     string
	concurrency int
	retries     int
	timeout     time.Duration
	cache       bool
	verbose     bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts cliOptions

	fs := flag.NewFlagSet("backpressure", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", "", "JSON or JSONC config file")
	fs.StringVarP(&opts.service, "service", "s", "", "service name from the config")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "max in-flight requests (default from config)")
	fs.IntVar(&opts.retries, "retries", 0, "retries per path (default from config)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-attempt timeout (default from config)")
	fs.BoolVar(&opts.cache, "cache", false, "read and write the persistent file cache")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: backpressure --config <file> --service <name> [flags] path...")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	paths := fs.Args()
	if opts.service == "" || len(paths) == 0 {
		fs.Usage()
		return 1
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	results, err := fetchAll(ctx, opts, fs, paths, logger)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	for _, r := range results {
		if r.Error != "" {
			return 1
		}
	}
	return 0
}

// fetchAll returns an error only when the client cannot be built; per-path
// failures are reported in the results.
func fetchAll(ctx context.Context, opts cliOptions, fs *flag.FlagSet, paths []string, logger *slog.Logger) ([]result, error) {
	cfg, err := backpressure.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	svc, ok := cfg.Service(opts.service)
	if !ok {
		return nil, backpressure.NewConfigurationError("cli", "service", fmt.Sprintf("%q is not configured", opts.service))
	}
	if fs.Changed("concurrency") {
		svc.Concurrency = opts.concurrency
	}
	if fs.Changed("retries") {
		svc.Retries = &opts.retries
	}
	if fs.Changed("timeout") {
		svc.Timeout = opts.timeout
	}

	c, err := backpressure.APIFactory(svc, backpressure.WithConfig(cfg), backpressure.WithSlogLogger(logger))
	if err != nil {
		return nil, err
	}
	defer c.Close()

	// The bulk helper retries each path itself, so the client makes a single
	// attempt per call in that mode.
	bulk := len(paths) > 1
	var perCall *backpressure.RetryOptions
	if bulk {
		perCall = &backpressure.RetryOptions{}
	}

	fetch := func(ctx context.Context, path string) (json.RawMessage, error) {
		return backpressure.Do[json.RawMessage](ctx, c, backpressure.Request{Path: path, Retry: perCall})
	}

	if opts.cache {
		fc := backpressure.OpenFileCache(backpressure.WithConfig(cfg), backpressure.WithSlogLogger(logger))
		defer func() {
			if err := fc.Close(); err != nil {
				logger.Warn("file cache flush failed", "path", fc.Path(), "error", err)
			}
		}()

		cached := backpressure.WithFileCache(fc, backpressure.FileCacheOptions[string, json.RawMessage]{
			GetKey:  func(path string) backpressure.Key { return backpressure.KeyOf(svc.Name + ":" + path) },
			Fetcher: fetch,
		})
		fetch = cached.Get
	}

	if tel := c.Telemetry(); tel != nil {
		timer := tel.StartTimer("cli.fetch", metrics.ServiceTag(svc.Name))
		defer func() {
			logger.Debug("fetch finished", "service", svc.Name, "paths", len(paths), "elapsed", timer.Stop())
		}()
	}

	if !bulk {
		value, err := fetch(ctx, paths[0])
		return []result{newResult(paths[0], value, err)}, nil
	}

	concurrency := svc.Concurrency
	if concurrency <= 0 {
		concurrency = len(paths)
	}
	bulkOpts := backpressure.BulkOptionsFromConfig(cfg, concurrency)
	bulkOpts.Retry.Retries = cfg.RetriesFor(svc)

	items, _ := backpressure.MapWithConcurrencyAndRetry(ctx, paths, fetch, bulkOpts)

	results := make([]result, len(items))
	for i, item := range items {
		results[i] = newResult(paths[i], item.Value, item.Err)
	}
	return results, nil
}

func newResult(path string, value json.RawMessage, err error) result {
	if err != nil {
		return result{Path: path, Error: err.Error()}
	}
	return result{Path: path, Value: value}
}
