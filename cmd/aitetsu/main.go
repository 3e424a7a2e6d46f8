// Command aitetsu is a terminal coding assistant that reads, writes and
// edits files in the working directory through an OpenRouter model.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/frixaco/llm/agentloop"
	"github.com/frixaco/llm/config"
	"github.com/frixaco/llm/console"
	"github.com/frixaco/llm/patch"
	"github.com/frixaco/llm/unifiedllm"
)

var (
	configPath     string
	model          string
	baseURL        string
	backend        string
	workingDir     string
	temperature    float64
	maxTokens      int
	maxSteps       int
	requestTimeout time.Duration
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "aitetsu",
	Short: "Terminal coding assistant",
	Long: `aitetsu answers questions about the code in the working directory and
changes it through three tools: readFile, writeFile and editFile.

Type quit, exit or end to leave. Ctrl-C exits at any time.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         run,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCONTEXT\tALIASES")
		for _, m := range unifiedllm.ListModels("") {
			fmt.Fprintf(w, "%s\t%s\t%d\t%v\n", m.ID, m.DisplayName, m.ContextWindow, m.Aliases)
		}
		return w.Flush()
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/aitetsu/config.yaml)")
	f.StringVarP(&model, "model", "m", "", "Model id or alias")
	f.StringVar(&baseURL, "base-url", "", "OpenAI-compatible endpoint")
	f.StringVar(&backend, "backend", "", "Provider backend: openai or gollm")
	f.StringVarP(&workingDir, "dir", "C", "", "Working directory (default: current directory)")
	f.Float64Var(&temperature, "temperature", 0, "Sampling temperature")
	f.IntVar(&maxTokens, "max-tokens", 0, "Maximum output tokens per request (0 = provider default)")
	f.IntVar(&maxSteps, "max-steps", 0, "Maximum provider round-trips per turn")
	f.DurationVar(&requestTimeout, "timeout", 0, "Time limit for one turn")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(modelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.Options{Path: configPath})
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)
	slog.SetDefault(logger)

	env, err := agentloop.NewLocalEnvironment(cfg.WorkingDir)
	if err != nil {
		return err
	}
	fs, err := patch.NewOSFileSystem(env.WorkingDir)
	if err != nil {
		return err
	}
	registry, err := agentloop.NewCoreRegistry(patch.NewEngine(fs))
	if err != nil {
		return err
	}
	executor := agentloop.NewToolExecutor(registry, agentloop.WithExecutorLogger(logger))

	modelID := unifiedllm.ResolveModel(cfg.Model)
	client, err := newClient(cfg, modelID, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	styles := console.PlainStyles()
	if term.IsTerminal(int(os.Stdout.Fd())) {
		styles = console.DefaultStyles()
	}
	reader, err := newLineReader(interactive, styles.Prompt.Render("> "))
	if err != nil {
		return err
	}
	defer reader.Close()

	con := console.New(reader, os.Stdout,
		console.WithStyles(styles),
		console.WithUsername(env.Username),
		console.WithLiveStatus(interactive),
		console.WithLogger(logger),
	)

	sessCfg := agentloop.DefaultSessionConfig()
	sessCfg.Model = modelID
	sessCfg.Temperature = &cfg.Temperature
	sessCfg.MaxTokens = cfg.MaxTokens
	sessCfg.MaxSteps = cfg.MaxSteps
	sessCfg.RequestTimeout = cfg.RequestTimeout
	sessCfg.LoopWindow = cfg.LoopWindow
	sessCfg.Logger = logger
	sessCfg.EventHandler = con.HandleEvent

	session := agentloop.NewSession(client, executor, agentloop.BuildSystemPrompt(env, modelID), &sessCfg)
	defer session.Close()

	// Ctrl-C outside the prompt ends the program at once.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		con.Farewell()
		os.Exit(0)
	}()

	return con.Run(cmd.Context(), session)
}

// applyFlags overrides file and environment settings with flags the user
// set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("model") {
		cfg.Model = model
	}
	if f.Changed("base-url") {
		cfg.BaseURL = baseURL
	}
	if f.Changed("backend") {
		cfg.Backend = backend
	}
	if f.Changed("dir") {
		cfg.WorkingDir = workingDir
	}
	if f.Changed("temperature") {
		cfg.Temperature = temperature
	}
	if f.Changed("max-tokens") {
		cfg.MaxTokens = maxTokens
	}
	if f.Changed("max-steps") {
		cfg.MaxSteps = maxSteps
	}
	if f.Changed("timeout") {
		cfg.RequestTimeout = requestTimeout
	}
	if f.Changed("verbose") {
		cfg.Verbose = verbose
	}
}

func newClient(cfg *config.Config, modelID string, logger *slog.Logger) (*unifiedllm.Client, error) {
	var adapter unifiedllm.ProviderAdapter
	switch cfg.Backend {
	case config.BackendGollm:
		opts := []unifiedllm.GollmAdapterOption{
			unifiedllm.WithModel(modelID),
			unifiedllm.WithTemperature(cfg.Temperature),
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, unifiedllm.WithMaxTokens(cfg.MaxTokens))
		}
		a, err := unifiedllm.NewGollmAdapter("openrouter", cfg.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		adapter = a
	default:
		a, err := unifiedllm.NewOpenAIAdapter(cfg.APIKey,
			unifiedllm.WithBaseURL(cfg.BaseURL),
			unifiedllm.WithDefaultModel(modelID),
		)
		if err != nil {
			return nil, err
		}
		adapter = a
	}

	return unifiedllm.NewClient(
		unifiedllm.WithProvider(adapter.Name(), adapter),
		unifiedllm.WithDefaultProvider(adapter.Name()),
		unifiedllm.WithStreamMiddleware(unifiedllm.LoggingStreamMiddleware(logger)),
	), nil
}

func newLineReader(interactive bool, prompt string) (console.LineReader, error) {
	if interactive {
		return console.NewReadlineReader(prompt)
	}
	return console.NewScannerReader(os.Stdin, os.Stdout, prompt), nil
}

// newLogger creates a structured logger on stderr with the configured
// verbosity.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}))
}
