package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aschepis/backscratcher/converse/agent"
	"github.com/aschepis/backscratcher/converse/config"
	"github.com/aschepis/backscratcher/converse/llm"
	converselogger "github.com/aschepis/backscratcher/converse/logger"
	"github.com/aschepis/backscratcher/converse/mcp"
	"github.com/aschepis/backscratcher/converse/provider"
	"github.com/aschepis/backscratcher/converse/tools"
	"github.com/rs/zerolog"
)

func main() {
	var (
		configPath   = flag.String("config", config.DefaultPath(), "Path to config file")
		providerName = flag.String("provider", "", "Model provider (anthropic, openai, ollama, gemini). Overrides config")
		model        = flag.String("model", "", "Model name. Overrides config")
		workspace    = flag.String("workspace", "", "Directory the file tools may read. File tools are disabled when empty")
		logFile      = flag.String("logfile", "", "Path to log file (default: converse.log, or the config's log_file)")
		pretty       = flag.Bool("pretty", false, "Log to stderr with pretty console output instead of a file")
		debug        = flag.Bool("debug", false, "Print tool activity while the model works")
	)
	flag.Parse()

	// Validate that --logfile and --pretty are mutually exclusive
	if *logFile != "" && *pretty {
		fmt.Fprintf(os.Stderr, "Error: --logfile and --pretty are mutually exclusive\n")
		os.Exit(1)
	}

	bootLogger := zerolog.Nop()
	cfg, err := config.Load(*configPath, bootLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logPath := *logFile
	if logPath == "" && !*pretty {
		logPath = cfg.LogFile
		if logPath == "" {
			logPath = converselogger.DefaultLogFile
		}
	}
	logger, logCloser, err := converselogger.InitWithOptions(logPath, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close() //nolint:errcheck // Nothing to do if the log file fails to close

	if *providerName != "" {
		cfg.Provider.Provider = *providerName
	}
	if *model != "" {
		cfg.Provider.Model = *model
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---------------------------
	// Tools
	// ---------------------------

	registry := tools.NewRegistry(logger)
	registry.Register(tools.CurrentTime(nil))
	registry.Register(tools.Notification(nil))
	if *workspace != "" {
		registry.Register(tools.ReadFile(*workspace))
		registry.Register(tools.ListDirectory(*workspace))
	}
	servers := mcp.Connect(ctx, cfg.MCPServers, registry, logger)
	defer servers.Close() //nolint:errcheck // Server shutdown errors are logged by the clients

	logger.Info().
		Strs("tools", registry.Names()).
		Strs("mcp_servers", servers.Names()).
		Msg("Tools registered")

	// ---------------------------
	// Conversation
	// ---------------------------

	session := provider.NewSession(logger, provider.WithMiddleware(llm.NewLoggingMiddleware(logger)))
	conv := agent.NewConversation(session, logger, agent.WithRegistry(registry))
	if err := conv.Configure(cfg.Provider); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid provider configuration: %v\n", err)
		os.Exit(1) //nolint:gocritic // Deferred cleanup has nothing to release yet
	}
	if err := session.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	// Ctrl-C stops the response in flight; at the prompt it exits.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGINT {
				switch conv.State() {
				case agent.StateStreaming, agent.StateToolExecuting:
					logger.Info().Msg("Interrupt received, stopping response")
					conv.Stop()
					continue
				}
			}
			logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
			_ = servers.Close()
			os.Exit(0)
		}
	}()

	if *debug {
		ctx = agent.WithDebugCallback(ctx, func(msg string) {
			fmt.Fprintf(os.Stderr, "  [%s]\n", msg)
		})
	}

	cur := session.Config()
	fmt.Printf("converse: %s/%s with %d tools. Type /help for commands.\n",
		cur.Provider, cur.Model, registry.Len())

	r := newREPL(conv, os.Stdin, os.Stdout, logger)
	if err := r.run(ctx); err != nil {
		logger.Error().Err(err).Msg("REPL failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	logger.Info().Msg("Application shutdown")
}
