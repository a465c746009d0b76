package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/gradesheet/internal/document"
	"github.com/pavelanni/gradesheet/internal/grader"
	"github.com/pavelanni/gradesheet/internal/llm"
	"github.com/pavelanni/gradesheet/internal/llm/prompts"
	"github.com/pavelanni/gradesheet/internal/model"
	"github.com/pavelanni/gradesheet/internal/parser"
	"github.com/pavelanni/gradesheet/internal/store"
)

const (
	providerOpenAI = "openai"
	providerGemini = "gemini"
)

var defaultModels = map[string]string{
	providerOpenAI: "llama3.2",
	providerGemini: "gemini-1.5-flash",
}

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gradesheet",
		Short: "Grade student answer sheets against a solution key with an LLM",
	}

	serve := serveCmd()
	root.AddCommand(serve, gradeCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addDBFlag(f *pflag.FlagSet) {
	f.String("db", "gradesheet.db", "SQLite database path or postgres:// URL")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addGradingFlags(f *pflag.FlagSet) {
	f.String("llm-provider", providerOpenAI, "Scoring backend (openai, gemini)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the scoring backend")
	f.String("llm-model", "", "Model name (default depends on provider)")
	f.String("prompt-variant", string(prompts.PromptStandard), "Scoring prompt variant (strict, standard, lenient)")
	f.String("pdftotext", "pdftotext", "Path to the pdftotext binary")
	f.Bool("skip-llm-check", false, "Do not ping the scoring backend on startup")
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

	v.SetEnvPrefix("GRADESHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("gradesheet")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/gradesheet")
	v.AddConfigPath("/etc/gradesheet")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func promptVariant(v *viper.Viper) string {
	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	return variant
}

// newOracle builds the scoring backend selected by llm-provider. The returned
// cleanup func must be called when the oracle is no longer needed.
func newOracle(ctx context.Context, v *viper.Viper) (llm.Oracle, func(), error) {
	provider := strings.ToLower(v.GetString("llm-provider"))
	modelName := v.GetString("llm-model")
	if modelName == "" {
		modelName = defaultModels[provider]
	}

	var (
		oracle  llm.Oracle
		cleanup = func() {}
	)
	switch provider {
	case providerOpenAI:
		oracle = llm.New(v.GetString("llm-url"), v.GetString("llm-key"), modelName)
	case providerGemini:
		g, err := llm.NewGemini(ctx, v.GetString("llm-key"), modelName)
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini client: %w", err)
		}
		oracle, cleanup = g, func() { _ = g.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown llm-provider %q (want %s or %s)", provider, providerOpenAI, providerGemini)
	}

	if p, ok := oracle.(llm.Pinger); ok && !v.GetBool("skip-llm-check") {
		if err := p.Ping(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "provider", provider, "model", modelName)
	}
	return oracle, cleanup, nil
}

// newGrader wires the document, parser and scoring collaborators into a grader.
func newGrader(ctx context.Context, v *viper.Viper, db *store.Store, cfg model.GradeConfig) (*grader.Grader, func(), error) {
	if err := prompts.Load(); err != nil {
		return nil, nil, fmt.Errorf("load prompts: %w", err)
	}
	oracle, cleanup, err := newOracle(ctx, v)
	if err != nil {
		return nil, nil, err
	}
	g := grader.New(
		db,
		document.NewAuto(v.GetString("pdftotext")),
		parser.NewHeuristic(),
		llm.NewScorer(oracle, cfg.PromptVariant),
		cfg,
	)
	return g, cleanup, nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		slog.Warn("no admin password set, /api/submissions is unavailable (set --admin-password or GRADESHEET_ADMIN_PASSWORD)")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	err = db.CreateUser(model.User{
		Username:     "admin",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
