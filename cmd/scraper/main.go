package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
)

const (
	exitOK           = 0
	exitError        = 1
	exitFetchFailure = 2
	exitInterrupted  = 130
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout))
}

func execute(args []string, stdout io.Writer) int {
	code := exitOK
	cmd := newRootCommand(viper.New(), stdout, &code)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return exitError
	}
	return code
}

func newRootCommand(v *viper.Viper, stdout io.Writer, code *int) *cobra.Command {
	defaults := config.DefaultConfig()
	var configFile string

	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Crawl a paginated product listing into CSV",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "read config: %v\n", err)
					return err
				}
			}

			cfg, err := config.Load(v)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid configuration: %v\n", err)
				return err
			}

			logger := newLogger(stdout, cfg.Verbose)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			*code = crawl(ctx, cfg, logger, stdout)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Optional YAML config file")
	flags.String("start-url", defaults.StartURL, "Listing page to start from")
	flags.Int("pages", defaults.MaxPages, "Maximum listing pages to scrape (0 = until the last page)")
	flags.Duration("delay", defaults.Delay, "Minimum pause between page requests")
	flags.Duration("random-delay", defaults.RandomDelay, "Random jitter added to the pause")
	flags.Duration("timeout", defaults.Timeout, "Per-request timeout")
	flags.String("output", defaults.OutputFile, "Output file path")
	flags.String("format", defaults.OutputFormat, "Output format: csv, json, or dual")
	flags.String("user-agent", defaults.UserAgent, "User-Agent header sent with every request")
	flags.BoolP("verbose", "v", defaults.Verbose, "Enable verbose logging")
	flags.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	config.BindEnv(v)
	if err := v.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("bind flags: %v", err))
	}

	return cmd
}

func crawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) int {
	logger.Info("starting scrape",
		slog.String("start_url", cfg.StartURL),
		slog.Int("max_pages", cfg.MaxPages),
		slog.String("output", cfg.OutputFile),
	)

	s, err := scraper.NewScraper(cfg, scraper.WithLogger(logger))
	if err != nil {
		logger.Error("initialising scraper", slog.Any("error", err))
		return exitError
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics, logger)

	result, err := s.RunToFile(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if result != nil {
		printSummary(stdout, result, cfg.OutputFile)
	}
	if err != nil {
		logger.Error("scraping failed", slog.Any("error", err))
		return exitError
	}
	return exitCode(result.State)
}

func exitCode(state models.CrawlState) int {
	switch state {
	case models.StateStoppedByNoNextPage, models.StateStoppedByPageLimit:
		return exitOK
	case models.StateStoppedByFetchFailure:
		return exitFetchFailure
	case models.StateStoppedByCancellation:
		return exitInterrupted
	default:
		return exitError
	}
}

func startMetricsServer(addr string, metrics *scraper.Metrics, logger *slog.Logger) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(w io.Writer, result *models.CrawlResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")

	fmt.Fprintf(w, "  State:         %s\n", result.State)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Records:       %d\n", result.RecordCount)
	fmt.Fprintf(w, "  Skipped:       %d\n", result.ExtractionErrors)
	if result.FetchErr != nil {
		fmt.Fprintf(w, "  Failed URL:    %s\n", result.LastURL)
		fmt.Fprintf(w, "  Error:         %v\n", result.FetchErr)
	}
	if result.Partial {
		fmt.Fprintln(w, "  Output is partial: the crawl stopped before the last page.")
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("run_id", uuid.NewString()))
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
