// Command qualitygate runs a suite of conversations against the configured
// chat model, scores every reply with the suite's evaluators and exits
// non-zero when any scenario misses its quality gate.
//
// Usage:
//
//	qualitygate -suite astronomy.yaml -report-dir .qualitygate -cache
//
// Exit codes: 0 when every scenario passed, 1 when at least one failed or
// errored, 2 on a usage or configuration error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-qualitygate/infrastructure/evaluators"
	"github.com/ahrav/go-qualitygate/infrastructure/llm"
	"github.com/ahrav/go-qualitygate/infrastructure/observability"
	"github.com/ahrav/go-qualitygate/infrastructure/reporting"
	"github.com/ahrav/go-qualitygate/internal/application"
	"github.com/ahrav/go-qualitygate/internal/config"
	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

const (
	exitPassed = 0
	exitFailed = 1
	exitUsage  = 2
)

// Circuit breaker settings applied to every provider.
const (
	breakerMaxFailures = 5
	breakerCooldown    = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	suitePath   string
	reportDir   string
	cache       bool
	cacheTTL    time.Duration
	execution   string
	tags        string
	parallelism int
	metricsAddr string
	logLevel    string
	logFormat   string
	secretsPath string
	rateLimit   float64
	retries     int
	timeout     time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("qualitygate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.suitePath, "suite", "", "Path to the suite YAML file (required)")
	fs.StringVar(&o.reportDir, "report-dir", "", "Directory for result records and the response cache; empty disables reporting")
	fs.BoolVar(&o.cache, "cache", false, "Serve repeated chat requests from the response cache (requires -report-dir)")
	fs.DurationVar(&o.cacheTTL, "cache-ttl", 0, "Response cache entry lifetime; zero keeps entries forever")
	fs.StringVar(&o.execution, "execution", "", "Execution name grouping this run's records; defaults to a timestamp")
	fs.StringVar(&o.tags, "tags", "", "Comma-separated tags; only scenarios carrying one of them run")
	fs.IntVar(&o.parallelism, "parallelism", 0, "Scenarios run at once; zero uses the suite's setting")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log format: text or json")
	fs.StringVar(&o.secretsPath, "secrets", config.DefaultSecretsPath(), "Secrets file consulted after the environment")
	fs.Float64Var(&o.rateLimit, "rate-limit", 0, "Maximum chat requests per second; zero disables limiting")
	fs.IntVar(&o.retries, "retries", 0, "Retries for transient chat failures; zero sends each request once")
	fs.DurationVar(&o.timeout, "timeout", 0, "Per-request chat timeout; zero disables it")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	switch {
	case o.suitePath == "":
		return o, errors.New("-suite is required")
	case o.cache && o.reportDir == "":
		return o, errors.New("-cache requires -report-dir")
	case o.parallelism < 0:
		return o, errors.New("-parallelism cannot be negative")
	case o.retries < 0:
		return o, errors.New("-retries cannot be negative")
	}
	return o, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid -log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid -log-format %q", format)
	}
}

// run executes the CLI and returns the process exit code. When sources is
// empty, settings come from the environment followed by the secrets file.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, sources ...ports.SecretSource) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "qualitygate:", err)
		}
		return exitUsage
	}
	logger, err := newLogger(stderr, o.logLevel, o.logFormat)
	if err != nil {
		fmt.Fprintln(stderr, "qualitygate:", err)
		return exitUsage
	}

	if len(sources) == 0 {
		sources = []ports.SecretSource{config.NewEnvSource(), config.NewFileSource(o.secretsPath)}
	}
	settings, err := config.NewLoader(logger, sources...).Load(ctx)
	if err != nil {
		var missing *domain.MissingConfigurationError
		if errors.As(err, &missing) {
			fmt.Fprintf(stderr, "qualitygate: missing configuration %s; set them in the environment or in %s\n",
				strings.Join(missing.Keys, ", "), o.secretsPath)
		} else {
			fmt.Fprintln(stderr, "qualitygate:", err)
		}
		return exitUsage
	}

	promReg := prometheus.NewRegistry()
	metrics := observability.NewPrometheusMetrics(promReg)
	if o.metricsAddr != "" {
		shutdown := serveMetrics(o.metricsAddr, promReg, logger)
		defer shutdown()
	}

	loader, err := application.NewSuiteLoader(application.NewEvaluatorRegistry(logger))
	if err != nil {
		fmt.Fprintln(stderr, "qualitygate:", err)
		return exitUsage
	}
	suite, err := loader.LoadFromFile(ctx, o.suitePath)
	if err != nil {
		fmt.Fprintln(stderr, "qualitygate:", err)
		return exitUsage
	}

	tracer := observability.Tracer()
	scenarios, err := loader.Build(suite, evaluators.WithLogger(logger), evaluators.WithTracer(tracer))
	if err != nil {
		fmt.Fprintln(stderr, "qualitygate:", err)
		return exitUsage
	}
	scenarios = filterByTags(scenarios, o.tags)
	if len(scenarios) == 0 {
		fmt.Fprintf(stderr, "qualitygate: no scenario matches tags %q\n", o.tags)
		return exitUsage
	}

	registry, err := llm.NewRegistry(llm.RegistryConfig{
		DefaultProvider: settings.Provider,
		Base: llm.ClientConfig{
			APIKey:     settings.APIKey,
			Model:      settings.Model,
			BaseURL:    settings.Endpoint,
			APIVersion: settings.APIVersion,
		},
		Middleware: func(provider string) []llm.Middleware { return middlewareChain(o, provider, metrics, logger) },
	})
	if err != nil {
		fmt.Fprintln(stderr, "qualitygate:", err)
		return exitUsage
	}
	chat, err := registry.Client("")
	if err != nil {
		fmt.Fprintln(stderr, "qualitygate:", err)
		return exitUsage
	}
	var judge ports.ChatClient = chat
	if suite.Defaults.JudgeModel != "" {
		j, err := registry.Client(suite.Defaults.JudgeModel)
		if err != nil {
			fmt.Fprintln(stderr, "qualitygate: judge:", err)
			return exitUsage
		}
		judge = j
	}

	execution := o.execution
	if execution == "" {
		execution = reporting.DefaultExecutionName(time.Now())
	}
	sc := &application.ScenarioContext{
		Chat:          chat,
		Judge:         judge,
		ExecutionName: execution,
		Metrics:       metrics,
		Tracer:        tracer,
		Logger:        logger,
	}
	if o.reportDir != "" {
		rc, err := reporting.NewReportingConfiguration(reporting.Options{
			StorageRoot:           o.reportDir,
			Chat:                  chat,
			Judge:                 judge,
			EnableResponseCaching: o.cache,
			CacheTTL:              o.cacheTTL,
			ExecutionName:         execution,
			Tags:                  suite.Metadata.Tags,
			Logger:                logger,
		})
		if err != nil {
			fmt.Fprintln(stderr, "qualitygate:", err)
			return exitUsage
		}
		sc.Reporting = rc
	}

	parallelism := suite.Parallelism
	if o.parallelism > 0 {
		parallelism = o.parallelism
	}
	logger.InfoContext(ctx, "running suite",
		"suite", suite.Metadata.Name,
		"execution", execution,
		"scenarios", len(scenarios),
		"parallelism", parallelism,
	)
	report := application.RunSuite(ctx, sc, scenarios, parallelism)
	printReport(stdout, report)

	if !report.Passed() {
		return exitFailed
	}
	return exitPassed
}

// middlewareChain returns the middleware applied to each new chat client of provider,
// outermost first.
func middlewareChain(o options, provider string, metrics *observability.PrometheusMetrics, logger *slog.Logger) []llm.Middleware {
	chain := []llm.Middleware{
		llm.TracingMiddleware(provider),
		llm.MetricsMiddleware(metrics, provider),
		llm.LoggingMiddleware(logger),
	}
	if o.retries > 0 {
		chain = append(chain, llm.RetryMiddleware(o.retries, 500*time.Millisecond, 10*time.Second))
	}
	chain = append(chain, llm.CircuitBreakerMiddlewareWithMetrics(breakerMaxFailures, breakerCooldown, metrics.CircuitBreaker(provider)))
	if o.rateLimit > 0 {
		chain = append(chain, llm.RateLimitMiddleware(rate.Limit(o.rateLimit), max(1, int(o.rateLimit))))
	}
	if o.timeout > 0 {
		chain = append(chain, llm.TimeoutMiddleware(o.timeout))
	}
	return chain
}

func serveMetrics(addr string, g prometheus.Gatherer, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// filterByTags keeps scenarios carrying at least one of the comma-separated
// tags. An empty list keeps everything.
func filterByTags(scenarios []application.Scenario, tags string) []application.Scenario {
	var want []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			want = append(want, t)
		}
	}
	if len(want) == 0 {
		return scenarios
	}
	return slices.DeleteFunc(slices.Clone(scenarios), func(s application.Scenario) bool {
		return !slices.ContainsFunc(s.Tags, func(t string) bool { return slices.Contains(want, t) })
	})
}

func printReport(w io.Writer, report *application.SuiteReport) {
	for _, o := range report.Outcomes {
		fmt.Fprintf(w, "%-5s %s (%s)\n", strings.ToUpper(verdict(o)), o.Scenario, o.Duration.Round(time.Millisecond))
		if o.Result != nil {
			for _, m := range o.Result.Metrics() {
				fmt.Fprintf(w, "      %s\n", describeMetric(m))
			}
		}
		if o.Err != nil {
			fmt.Fprintf(w, "      error: %v\n", o.Err)
		}
		if o.Violations != nil {
			for _, line := range strings.Split(o.Violations.Error(), "\n") {
				fmt.Fprintf(w, "      %s\n", strings.TrimSpace(line))
			}
		}
	}
	passed, failed, errored := report.Counts()
	fmt.Fprintf(w, "\nexecution %s: %d passed, %d failed, %d errored\n", report.Execution, passed, failed, errored)
}

func verdict(o application.ScenarioOutcome) string {
	switch o.Status() {
	case application.StatusPassed:
		return "pass"
	case application.StatusFailed:
		return "fail"
	default:
		return "error"
	}
}

func describeMetric(m domain.Metric) string {
	value := "n/a"
	if m.Value != nil {
		value = fmt.Sprintf("%.2f", *m.Value)
	}
	rating := domain.RatingUnacceptable.String()
	if m.Interpretation != nil {
		rating = m.Interpretation.Rating.String()
	}
	return fmt.Sprintf("%s=%s %s", m.Name, value, rating)
}
