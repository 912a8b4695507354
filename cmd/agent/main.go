package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/petasbytes/go-toolchat/internal/config"
	"github.com/petasbytes/go-toolchat/internal/metrics"
	"github.com/petasbytes/go-toolchat/internal/provider"
	"github.com/petasbytes/go-toolchat/internal/runner"
	"github.com/petasbytes/go-toolchat/internal/telemetry"
	"github.com/petasbytes/go-toolchat/memory"
	"github.com/petasbytes/go-toolchat/tools"
)

type options struct {
	conversation   string
	speaker        string
	injectDateTime bool
	maxToolRounds  int
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Use fmt for fatal errors before the logger is initialized.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	opts := options{}
	flagSet := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	flagSet.StringVar(&opts.conversation, "conversation", memory.DefaultConversationID, "conversation id to chat in")
	flagSet.StringVar(&opts.speaker, "name", defaultSpeaker(), "speaker name attached to your messages")
	flagSet.BoolVar(&opts.injectDateTime, "inject-datetime", cfg.InjectDateTime, "prefix the system message with the current date and time")
	flagSet.IntVar(&opts.maxToolRounds, "max-tool-rounds", cfg.MaxToolRounds, "tool calls allowed per turn")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	telemetry.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := telemetry.Logger()

	store, err := memory.NewStore(memory.Options{
		SystemMessage: cfg.SystemMessage,
		MaxMessages:   cfg.MaxMessages,
		Path:          cfg.StoragePath,
		Location:      cfg.Location(),
		BotName:       cfg.BotName,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.Workspace{Dir: cfg.WorkspaceDir}, cfg.Location()); err != nil {
		return err
	}

	endpoint, err := newEndpoint(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	runnerOpts := []runner.Option{
		runner.WithTokenBudget(cfg.TokenBudget),
		runner.WithMetrics(metrics.NewRecorder(reg)),
		runner.WithLogger(*logger),
	}
	if cfg.RequestsPerSecond > 0 {
		runnerOpts = append(runnerOpts, runner.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)))
	}
	r := runner.New(endpoint, store, registry, runnerOpts...)

	// Set up graceful shutdown on Ctrl-C (SIGINT) / SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		<-sigch
		fmt.Println("\nExiting...")
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().
		Str("provider", cfg.Provider).
		Str("conversation", opts.conversation).
		Int("max_tool_rounds", opts.maxToolRounds).
		Msg("chat ready")
	return repl(ctx, r, store, opts, os.Stdin, os.Stdout)
}

// defaultSpeaker labels REPL prompts with the login name, or "User".
func defaultSpeaker() string {
	if u := strings.TrimSpace(os.Getenv("USER")); u != "" {
		return u
	}
	return "User"
}

func newEndpoint(cfg *config.Config) (provider.Endpoint, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("missing API key; set AGT_API_KEY or OPENAI_API_KEY")
		}
		client := &http.Client{Timeout: 2 * time.Minute}
		return provider.NewOpenAI(client, cfg.OpenAIBaseURL, apiKey, cfg.Model, cfg.MaxTokens), nil
	default:
		if cfg.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, errors.New("missing API key; set AGT_API_KEY or ANTHROPIC_API_KEY")
		}
		return provider.NewAnthropic(cfg.APIKey, cfg.Model, int64(cfg.MaxTokens)), nil
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		telemetry.Logger().Info().Str("addr", addr).Msg("serving /metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Logger().Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}
