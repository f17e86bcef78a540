// Command scrutari is the CLI entrypoint: a godotenv-loading,
// provider-selecting bootstrap over the skill-pipeline engine. Argument
// parsing itself stays minimal/stdlib flag-based: spec.md §1 explicitly
// excludes a full CLI argument parser from this module's scope.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/scrutari/internal/catalog"
	"github.com/ChamsBouzaiene/scrutari/internal/config"
	"github.com/ChamsBouzaiene/scrutari/internal/estimate"
	"github.com/ChamsBouzaiene/scrutari/internal/hooks"
	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
	"github.com/ChamsBouzaiene/scrutari/internal/pipeline"
	"github.com/ChamsBouzaiene/scrutari/internal/providers"
	"github.com/ChamsBouzaiene/scrutari/internal/skill"
)

// Exit codes per spec.md §6: 0 success, 1 any error, 2 config-missing, 130
// user abort.
const (
	exitOK            = 0
	exitError         = 1
	exitConfigMissing = 2
	exitUserAbort     = 130
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], log))
}

func run(ctx context.Context, args []string, log zerolog.Logger) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: scrutari {init|config|skills|mcp|analyze|compare|chat} ...")
		return exitError
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "init":
		err = cmdInit(ctx, rest, log)
	case "config":
		err = cmdConfig(ctx, rest, log)
	case "skills":
		err = cmdSkills(ctx, rest, log)
	case "mcp":
		err = cmdMCP(ctx, rest, log)
	case "analyze":
		err = cmdAnalyze(ctx, rest, log)
	case "compare":
		err = cmdCompare(ctx, rest, log)
	case "chat":
		err = cmdChat(ctx, rest, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		return exitError
	}

	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) {
		return exitUserAbort
	}
	var missing *configMissingError
	if errors.As(err, &missing) {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigMissing
	}
	log.Error().Err(err).Str("command", cmd).Msg("command failed")
	return exitError
}

// configMissingError maps to exit code 2.
type configMissingError struct{ reason string }

func (e *configMissingError) Error() string { return "config missing: " + e.reason }

func cmdInit(ctx context.Context, args []string, log zerolog.Logger) error {
	mgr, err := config.NewManager()
	if err != nil {
		return err
	}
	if mgr.Exists() {
		fmt.Println("scrutari is already configured at", mgr.GetConfigPath())
		return nil
	}
	cfg := &config.Config{
		Model:                   "claude-sonnet-4-5",
		BudgetUSD:               5.0,
		CompactionAutoThreshold: 0.85,
		PreserveTurns:           4,
	}
	if err := mgr.Save(cfg); err != nil {
		return err
	}
	fmt.Println("wrote", mgr.GetConfigPath())
	return nil
}

func cmdConfig(ctx context.Context, args []string, log zerolog.Logger) error {
	mgr, err := config.NewManager()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("usage: scrutari config {show|set|init}")
	}
	switch args[0] {
	case "init":
		return cmdInit(ctx, args[1:], log)
	case "show":
		if !mgr.Exists() {
			return &configMissingError{reason: "run `scrutari init` first"}
		}
		cfg, err := mgr.Load()
		if err != nil {
			return err
		}
		fmt.Printf("%+v\n", cfg)
		return nil
	case "set":
		if len(args) < 3 {
			return errors.New("usage: scrutari config set <key> <value>")
		}
		cfg, err := mgr.Load()
		if err != nil {
			return err
		}
		if err := applyConfigSet(cfg, args[1], args[2]); err != nil {
			return err
		}
		return mgr.Save(cfg)
	default:
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

func applyConfigSet(cfg *config.Config, key, value string) error {
	switch key {
	case "model":
		cfg.Model = value
	case "llm_provider":
		cfg.LLMProvider = value
	case "base_url":
		cfg.BaseURL = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func cmdSkills(ctx context.Context, args []string, log zerolog.Logger) error {
	if len(args) == 0 {
		return errors.New("usage: scrutari skills {list|show|create}")
	}
	loader, dir, err := loadSkillsDir()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e.Name())
		}
		return nil
	case "show":
		if len(args) < 2 {
			return errors.New("usage: scrutari skills show <name>")
		}
		sk, ok := loader.Pipeline(args[1])
		if !ok {
			return fmt.Errorf("skill %q not found in %s", args[1], dir)
		}
		fmt.Printf("%s: %d stage(s), primary output %q\n", sk.Name, len(sk.Stages), sk.Output.Primary)
		return nil
	case "create":
		return errors.New("skills create: interactively authoring a skill file is a terminal-UI concern, out of this module's scope")
	default:
		return fmt.Errorf("unknown skills subcommand %q", args[0])
	}
}

func cmdMCP(ctx context.Context, args []string, log zerolog.Logger) error {
	// MCP transports are explicitly out of scope (spec.md §1); this
	// subcommand is a documented stub surface only.
	if len(args) == 0 {
		return errors.New("usage: scrutari mcp {list|test|add|remove}")
	}
	return fmt.Errorf("mcp %s: MCP transport is out of this module's scope; wire a transport adapter externally", args[0])
}

func cmdAnalyze(ctx context.Context, args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	skillName := fs.String("skill", "default_analysis", "pipeline skill to run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: scrutari analyze <ticker>")
	}
	ticker := fs.Arg(0)

	eng, loader, cat, hookExec, err := bootstrapEngine(log)
	if err != nil {
		return err
	}

	sk, ok := loader.Pipeline(*skillName)
	if !ok {
		return fmt.Errorf("skill %q not loaded", *skillName)
	}

	est := estimate.New(loader, cat).Estimate(sk, "")
	log.Info().Str("skill", sk.Name).Str("estimate", est.Describe()).Msg("estimated pipeline cost")

	events := eng.Run(ctx, sk, pipeline.RunOptions{Inputs: map[string]any{"ticker": ticker}, Hooks: hookExec})
	return drainEvents(events, log)
}

func cmdCompare(ctx context.Context, args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	skillName := fs.String("skill", "default_comparison", "pipeline skill to run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("usage: scrutari compare <ticker> <ticker> [...]")
	}

	eng, loader, _, hookExec, err := bootstrapEngine(log)
	if err != nil {
		return err
	}
	sk, ok := loader.Pipeline(*skillName)
	if !ok {
		return fmt.Errorf("skill %q not loaded", *skillName)
	}

	events := eng.Run(ctx, sk, pipeline.RunOptions{Inputs: map[string]any{"tickers": fs.Args()}, Hooks: hookExec})
	return drainEvents(events, log)
}

func cmdChat(ctx context.Context, args []string, log zerolog.Logger) error {
	return errors.New("chat: interactive terminal rendering is out of this module's scope; the chatsession/compaction packages back an external chat front-end")
}

func drainEvents(events <-chan pipeline.Event, log zerolog.Logger) error {
	for ev := range events {
		switch ev.Kind {
		case pipeline.EventStageError, pipeline.EventPipelineError:
			log.Error().Str("stage", ev.Stage).Str("error", ev.Error).Msg("pipeline event")
		case pipeline.EventPipelineDone:
			fmt.Println(ev.PrimaryOutput)
		default:
			log.Debug().Str("stage", ev.Stage).Str("kind", string(ev.Kind)).Msg("pipeline event")
		}
	}
	return nil
}

// bootstrapEngine wires C1–C6 from the user's config. It resolves a real
// provider client via internal/providers.NewClientFromEnv, which is the one
// concrete HTTP-transport implementation this module ships.
func bootstrapEngine(log zerolog.Logger) (*pipeline.Engine, *skill.Loader, *catalog.Catalog, *hooks.Executor, error) {
	mgr, err := config.NewManager()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if !mgr.Exists() {
		return nil, nil, nil, nil, &configMissingError{reason: "run `scrutari init` first"}
	}
	cfg, err := mgr.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	loader, _, err := loadSkillsDir()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	cat := catalog.Default()
	client, defaultModel, err := providers.NewClientFromEnv()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("no provider configured: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	facade := llmcall.New(client, cat)
	hookExec := hooks.NewExecutor(configuredHooks(cfg.Hooks), log, func(e *hooks.HookExecutionError) {
		log.Warn().Str("hook", e.Hook).Bool("timed_out", e.TimedOut).Msg("hook failed")
	})

	eng := pipeline.New(loader, facade, cat)
	return eng, loader, cat, hookExec, nil
}

func configuredHooks(settings []config.HookSetting) []hooks.Hook {
	out := make([]hooks.Hook, 0, len(settings))
	for _, s := range settings {
		out = append(out, hooks.Hook{
			Command:     s.Command,
			Description: s.Description,
			Phase:       hooks.Phase(s.Phase),
			Stage:       s.Stage,
			Tool:        s.Tool,
			TimeoutMS:   s.TimeoutMS,
			Background:  s.Background,
		})
	}
	return out
}

func loadSkillsDir() (*skill.Loader, string, error) {
	dir := os.Getenv("SCRUTARI_SKILLS_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, "", err
		}
		dir = filepath.Join(home, ".scrutari", "skills")
	}

	loader := skill.NewLoader()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return loader, dir, nil
		}
		return nil, dir, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			if _, err := loader.LoadPipeline(path, data); err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			}
		case ".md":
			if _, err := loader.LoadAgent(path, dir, data); err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			}
		}
	}
	return loader, dir, nil
}
