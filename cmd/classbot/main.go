package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/classbot/internal/bot"
	"github.com/pavelanni/classbot/internal/delivery"
	"github.com/pavelanni/classbot/internal/handler"
	appI18n "github.com/pavelanni/classbot/internal/i18n"
	"github.com/pavelanni/classbot/internal/intent"
	"github.com/pavelanni/classbot/internal/llm"
	"github.com/pavelanni/classbot/internal/llm/prompts"
	"github.com/pavelanni/classbot/internal/model"
	"github.com/pavelanni/classbot/internal/quiz"
	"github.com/pavelanni/classbot/internal/session"
	"github.com/pavelanni/classbot/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "classbot",
		Short: "School chat assistant with quizzes, grades and class stats",
	}

	serve := serveCmd()
	root.AddCommand(serve, chatCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `classbot --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addBotFlags registers the flags shared by every command that answers messages.
func addBotFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "classbot.db", "SQLite database path")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL (empty disables the LLM)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.StringP("lang", "l", "en", "Reply language (en, ru)")
	f.String("quiz-level", string(prompts.LevelStandard), "Quiz difficulty (easy, standard, hard)")
	f.String("grading-mode", string(model.GradingAtomic), "Quiz grading mode (atomic, incremental)")
	f.Duration("generation-timeout", 20*time.Second, "Time limit for generating a quiz before falling back")
	f.Duration("intent-timeout", 10*time.Second, "Time limit for LLM intent classification")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE:  runServe,
	}
	addBotFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("school", "", "School name stored in the roster metadata")
	f.String("telegram-token", "", "Telegram bot token (enables /webhook/telegram)")
	f.String("telegram-secret", "", "Secret token expected on Telegram webhook calls")
	f.Int("delivery-attempts", 4, "Delivery attempts per reply, including the first")
	f.String("admin-token", "", "Bearer token for the /admin routes (empty disables them)")
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot on stdin without a server",
		RunE:  runChat,
	}
	addBotFlags(cmd)
	cmd.Flags().String("from", "+10000000000", "Sender identity for the chat session")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export members and grades as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "classbot.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CLASSBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("classbot")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/classbot")
	v.AddConfigPath("/etc/classbot")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// buildBot wires the store, LLM client, generator, classifier and session
// registry into a Bot. The caller closes the returned store.
func buildBot(v *viper.Viper) (*bot.Bot, *store.Store, error) {
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}

	mode := model.GradingMode(strings.ToLower(v.GetString("grading-mode")))
	if mode != model.GradingAtomic && mode != model.GradingIncremental {
		return nil, nil, fmt.Errorf("invalid grading mode %q (want atomic or incremental)", mode)
	}

	level := strings.ToLower(strings.TrimSpace(v.GetString("quiz-level")))
	if !prompts.IsValidLevel(level) {
		slog.Warn("invalid quiz-level, using standard", "level", level)
		level = string(prompts.LevelStandard)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	var (
		text   quiz.TextGenerator
		labels intent.LabelClassifier
	)
	if url := v.GetString("llm-url"); url != "" {
		client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), level)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("create LLM client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(ctx); err != nil {
			slog.Warn("LLM health check failed, replies will use fallbacks until it recovers", "url", url, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		}
		cancel()
		text, labels = client, client
	} else {
		slog.Warn("no LLM configured, using fallback quizzes and pattern intents")
	}

	cfg := model.BotConfig{
		GradingMode:       mode,
		QuizSize:          quiz.DefaultSize,
		GenerationTimeout: v.GetDuration("generation-timeout"),
		Lang:              lang,
	}
	b := bot.New(
		session.NewRegistry(),
		quiz.NewGenerator(text, cfg.GenerationTimeout),
		intent.New(labels, v.GetDuration("intent-timeout")),
		db,
		cfg,
	)
	return b, db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	b, db, err := buildBot(v)
	if err != nil {
		return err
	}
	defer db.Close()

	if school := v.GetString("school"); school != "" {
		if err := db.SetMetadata(store.SchoolName, school); err != nil {
			return fmt.Errorf("set school name: %w", err)
		}
	}

	// Keep the nil interface when Telegram is off so the route stays disabled.
	var tg delivery.Deliverer
	if token := v.GetString("telegram-token"); token != "" {
		client, err := delivery.NewTelegram(token)
		if err != nil {
			return err
		}
		tg = delivery.NewRetrying(client, v.GetInt("delivery-attempts"), 500*time.Millisecond)
	}

	h := handler.New(b, db, tg, handler.Config{
		AdminToken:     v.GetString("admin-token"),
		TelegramSecret: v.GetString("telegram-secret"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"lang", v.GetString("lang"),
			"grading_mode", v.GetString("grading-mode"),
			"telegram", tg != nil,
			"admin", v.GetString("admin-token") != "",
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}
	h.Wait()
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	b, db, err := buildBot(v)
	if err != nil {
		return err
	}
	defer db.Close()

	from := v.GetString("from")
	ctx := context.Background()
	out := cmd.OutOrStdout()
	replies := delivery.Writer{W: out}
	scanner := bufio.NewScanner(cmd.InOrStdin())

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			reply := b.HandleInboundMessage(ctx, from, line)
			if err := replies.Deliver(ctx, from, reply); err != nil {
				return err
			}
		}
		fmt.Fprint(out, "> ")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportRoster()
	if err != nil {
		return fmt.Errorf("export roster: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported roster", "members", len(export.Members), "grades", len(export.Grades))
	return nil
}
