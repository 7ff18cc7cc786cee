package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/decision"
	"github.com/webpilot-ai/webpilot/internal/degrade"
	"github.com/webpilot-ai/webpilot/internal/escalate"
	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/handler"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/llm/providers"
	"github.com/webpilot-ai/webpilot/internal/planner"
	"github.com/webpilot-ai/webpilot/internal/recovery"
	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/store"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
	"github.com/webpilot-ai/webpilot/internal/ui"
	"github.com/webpilot-ai/webpilot/internal/workflow"
)

// engine bundles one fully wired execution stack: provider chain, stores,
// event bus, security gate, recovery pipeline, workflow and task handlers.
type engine struct {
	sessionID types.ID
	db        *store.DB
	bus       *events.Bus
	tasks     *task.Manager
	workflow  *workflow.Workflow
	registry  *handler.Registry
}

// newEngine wires the execution stack from configuration. The channel carries
// confirmation prompts and escalations; nil means no human is reachable and
// every escalation resolves by its headless fallback.
func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, channel ui.Channel) (*engine, error) {
	selector, err := buildSelector(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "create database directory", err)
	}
	dbCfg := store.DefaultDBConfig(cfg.Database.Path)
	dbCfg.MaxOpenConns = cfg.Database.MaxConnections
	if cfg.Database.BusyTimeout > 0 {
		dbCfg.BusyTimeout = cfg.Database.BusyTimeout
	}
	db, err := store.OpenWithConfig(dbCfg)
	if err != nil {
		return nil, err
	}

	auditStore, err := store.NewAuditStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	taskStore, err := store.NewTaskStore(afero.NewOsFs(), cfg.Core.DataDir, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	bus := events.NewBus()
	sessionID := types.NewID()
	tasks := task.NewManager(logger)

	validator := security.NewValidator()
	gate := security.NewGate(
		validator,
		security.NewConfirmer(cfg.Security, channel),
		security.NewAuditor(sessionID, auditStore, bus, logger),
		logger,
	)

	wf, err := workflow.New(cfg.Workflow.Build(), workflow.Deps{
		Driver:      browser.NewScriptedDriver(),
		Planner:     planner.New(selector, logger),
		Decider:     decision.NewEngine(selector, validator, logger),
		Gate:        gate,
		Recovery:    recovery.NewHandler(cfg.Recovery.Build(), bus, logger),
		Degradation: degrade.NewManager(cfg.Degradation.Build(), bus, logger),
		Escalation: escalate.NewManager(channel, logger,
			escalate.WithBaseTimeout(cfg.Escalation.BaseTimeout),
			escalate.WithBus(bus)),
		Tasks: tasks,
		Store: taskStore,
		Bus:   bus,
	}, logger)
	if err != nil {
		bus.Close()
		db.Close()
		return nil, err
	}

	registry := handler.NewRegistry(logger)
	registry.Register(handler.NewEmailHandler(wf, logger))
	registry.Register(handler.NewOrderingHandler(wf, logger))

	return &engine{
		sessionID: sessionID,
		db:        db,
		bus:       bus,
		tasks:     tasks,
		workflow:  wf,
		registry:  registry,
	}, nil
}

// execute routes the task to a matching domain handler, or straight to the
// workflow when none claims it. The result map is what gets reported to the
// user.
func (e *engine) execute(ctx context.Context, t *task.Task) (map[string]any, error) {
	if _, ok := e.registry.Find(t); ok {
		return e.registry.Execute(ctx, t)
	}

	rep, err := e.workflow.Run(ctx, t)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":           string(rep.Status),
		"actions_executed": rep.ActionsExecuted,
		"actions_failed":   rep.ActionsFailed,
		"actions_blocked":  rep.ActionsBlocked,
		"completion":       rep.CompletionPercentage,
		"message":          rep.Message,
	}, nil
}

func (e *engine) Close() error {
	e.bus.Close()
	return e.db.Close()
}

// buildSelector registers the configured primary provider and any fallbacks
// on a selector. The deterministic stub is always registered so the chain can
// never be empty.
func buildSelector(cfg config.LLMConfig, logger *slog.Logger) (*llm.Selector, error) {
	primary := cfg.Provider
	if primary == "" {
		primary = "stub"
	}

	selector := llm.NewSelector(logger)
	registered := map[string]bool{}
	for _, name := range append([]string{primary}, cfg.Fallbacks...) {
		if registered[name] {
			continue
		}
		p, err := buildProvider(name, cfg.Build())
		if err != nil {
			return nil, err
		}
		if err := selector.Register(p); err != nil {
			return nil, err
		}
		registered[name] = true
	}
	if !registered["stub"] {
		if err := selector.Register(providers.NewStubProvider("")); err != nil {
			return nil, err
		}
	}

	if err := selector.SetPrimary(primary); err != nil {
		return nil, err
	}
	if len(cfg.Fallbacks) > 0 {
		if err := selector.SetFallbacks(cfg.Fallbacks...); err != nil {
			return nil, err
		}
	}
	return selector, nil
}

func buildProvider(name string, pc llm.ProviderConfig) (llm.Provider, error) {
	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(pc)
	case "openai":
		return providers.NewOpenAIProvider(pc)
	case "ollama":
		return providers.NewOllamaProvider(pc)
	case "stub":
		return providers.NewStubProvider(""), nil
	default:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			"unknown model provider: "+name)
	}
}
