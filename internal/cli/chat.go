package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/martinemde/toolline/agentloop"
	"github.com/martinemde/toolline/internal/config"
	"github.com/martinemde/toolline/internal/logger"
	"github.com/martinemde/toolline/modelstream"
	"github.com/martinemde/toolline/sessionstore"
)

var (
	chatMaxRounds int
	chatWorkdir   string
	chatModel     string
)

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Start or resume an interactive chat session",
	Long: `Start an interactive chat session. Pass a session id to resume an
earlier conversation; with no argument a new session is created.

Type /exit (or press Ctrl-D) to quit. Ctrl-C cancels the turn in progress
and returns to the prompt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := ""
		if len(args) == 1 {
			sessionID = args[0]
		}
		return runChat(sessionID)
	},
}

func init() {
	chatCmd.Flags().IntVar(&chatMaxRounds, "max-rounds", 0, "maximum tool rounds per user input")
	chatCmd.Flags().StringVar(&chatWorkdir, "workdir", "", "working directory for tools (default: current directory)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model identifier (overrides config)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(sessionID string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if chatModel != "" {
		cfg.Model = chatModel
	}
	if chatMaxRounds > 0 {
		cfg.MaxToolRounds = chatMaxRounds
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		return err
	}
	defer log.Close()

	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" && cfg.Provider != "ollama" {
		return fmt.Errorf("no API key found: set TOOLLINE_API_KEY, the provider's key variable, or api_key in the config file")
	}

	transport, err := modelstream.NewGollmTransport(cfg.Provider, apiKey,
		modelstream.WithModel(cfg.Model))
	if err != nil {
		return err
	}
	client := modelstream.NewClient(
		modelstream.WithTransport(transport),
		modelstream.WithRetryPolicy(modelstream.DefaultRetryPolicy().WithRetryLogging(log.Logger)),
	)
	defer client.Close()

	store, err := sessionstore.New(cfg.SessionsDir())
	if err != nil {
		return err
	}

	var history []agentloop.Message
	if sessionID == "" {
		sessionID, err = store.Create()
		if err != nil {
			return err
		}
		fmt.Printf("session %s\n", sessionID)
	} else {
		history, err = store.Resume(sessionID)
		if err != nil {
			return err
		}
		fmt.Printf("resumed session %s (%d messages)\n", sessionID, len(history))
	}

	registry := agentloop.NewToolRegistry()
	env := agentloop.NewLocalEnvironment(chatWorkdir)

	loop := agentloop.NewLoop(sessionID, client, registry, env, store, agentloop.LoopConfig{
		Model:         cfg.Model,
		Provider:      cfg.Provider,
		MaxToolRounds: cfg.MaxToolRounds,
		RepeatWindow:  agentloop.DefaultLoopConfig().RepeatWindow,
	}, log.Logger)
	defer loop.Close()
	loop.Restore(history)

	agentloop.RegisterCoreTools(registry, loop.Executor())
	if cfg.CommandTimeoutMs > 0 {
		loop.Executor().CommandTimeout = time.Duration(cfg.CommandTimeoutMs) * time.Millisecond
	}

	turnDone := make(chan struct{})
	go renderEvents(loop.Events(), turnDone)

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !reader.Scan() {
			fmt.Println()
			return reader.Err()
		}
		input := strings.TrimSpace(reader.Text())
		if input == "" {
			continue
		}
		if input == "/exit" || input == "/quit" {
			return nil
		}

		// Ctrl-C cancels this turn only; at the prompt the default handler
		// is back in place and Ctrl-C exits.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err := loop.Submit(ctx, input)
		stop()
		<-turnDone

		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			var persist *agentloop.PersistError
			if errors.As(err, &persist) || !modelstream.IsRetryable(err) {
				return err
			}
			// A retryable transport hiccup already exhausted its retries;
			// the conversation itself is intact, so keep the prompt open.
		}
		fmt.Println()
	}
}

// renderEvents consumes loop events and paints them to stdout. It signals
// turnDone each time a turn finishes so the prompt reappears only after all
// of the turn's output is on screen.
func renderEvents(events <-chan agentloop.SessionEvent, turnDone chan<- struct{}) {
	for event := range events {
		switch event.Kind {
		case agentloop.EventTextDelta:
			if text, ok := event.Data["text"].(string); ok {
				fmt.Print(text)
			}
		case agentloop.EventToolStart:
			name, _ := event.Data["tool_name"].(string)
			fmt.Printf("\n[running %s]\n", name)
		case agentloop.EventToolEnd:
			ok, _ := event.Data["ok"].(bool)
			if !ok {
				name, _ := event.Data["tool_name"].(string)
				payload, _ := event.Data["payload"].(string)
				fmt.Printf("[%s failed: %s]\n", name, payload)
			}
		case agentloop.EventRoundLimit:
			fmt.Printf("\n[tool round limit reached]\n")
		case agentloop.EventRepeatWarning:
			if msg, ok := event.Data["message"].(string); ok {
				fmt.Printf("\n[%s]\n", msg)
			}
		case agentloop.EventWarning:
			if msg, ok := event.Data["message"].(string); ok {
				fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
			}
		case agentloop.EventTurnEnd:
			turnDone <- struct{}{}
		}
	}
}
