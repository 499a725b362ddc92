package main

import (
	"context"
	"fmt"

	"github.com/trioctl/trio/internal/approval"
	"github.com/trioctl/trio/internal/config"
	"github.com/trioctl/trio/internal/eventbus"
	"github.com/trioctl/trio/internal/executor"
	"github.com/trioctl/trio/internal/lifecycle"
	"github.com/trioctl/trio/internal/llm"
	"github.com/trioctl/trio/internal/memory"
	"github.com/trioctl/trio/internal/observability"
	"github.com/trioctl/trio/internal/orchestrator"
	"github.com/trioctl/trio/internal/permissions"
	"github.com/trioctl/trio/internal/planner"
	"github.com/trioctl/trio/internal/registry"
	"github.com/trioctl/trio/internal/sessions"
	"github.com/trioctl/trio/internal/spawner"
	"github.com/trioctl/trio/internal/storage"
	"github.com/trioctl/trio/internal/tools/exec"
	"github.com/trioctl/trio/internal/tools/files"
	"github.com/trioctl/trio/internal/tools/memorysearch"
	"github.com/trioctl/trio/internal/tools/websearch"
	"github.com/trioctl/trio/pkg/models"
)

// runtime holds every collaborator wired together for one trio process:
// the Trio Coordinator sits at the top, everything else is a dependency of
// either it or the CLI subcommands that inspect its state.
type runtime struct {
	cfg *config.Config

	logger   *observability.Logger
	shutdown func(context.Context) error

	bus         *eventbus.Bus
	metrics     *observability.Metrics
	debugEvents *eventbus.ChanSink
	events      observability.EventStore
	eventBridge *observability.EventBridge
	perms       *permissions.Manager
	approvals   *approval.Gate
	tools       *registry.Registry
	lifecycle   *lifecycle.Manager
	spawner     *spawner.Spawner
	coordinator *orchestrator.Coordinator

	sessionStore sessions.Store
	storageStore storage.Store
	memory       *memory.Manager

	basePermissions models.Permissions
}

// buildRuntime wires the full Trio stack from a loaded configuration. The
// caller is responsible for calling Close when done.
func buildRuntime(ctx context.Context, cfg *config.Config, approvalMode string, debug bool) (*runtime, error) {
	logCfg := config.EffectiveLogConfig(cfg.Logging)
	if debug {
		logCfg.Level = "debug"
		logCfg.AddSource = true
	}
	logger := observability.NewLogger(logCfg)

	_, shutdownTracer := observability.NewTracer(config.EffectiveTraceConfig(cfg.Observability.Tracing))

	bus := eventbus.New(1024)
	perms := permissions.New(cfg.Runtime.EffectiveSecurityMode())

	metrics := observability.NewMetrics()
	bus.SubscribeAll(observability.NewMetricsSubscriber(metrics).Handle)

	eventStore := observability.NewMemoryEventStore(cfg.Observability.TimelineEventCap)
	eventRecorder := observability.NewEventRecorder(eventStore, logger)
	eventBridge := observability.NewEventBridge(eventRecorder)
	bus.SubscribeAll(eventBridge.Handle)

	var debugEvents *eventbus.ChanSink
	if debug {
		debugEvents = eventbus.NewChanSink(eventbus.DefaultChanSinkConfig())
		bus.SubscribeAll(debugEvents.Handle)
		go streamDebugEvents(debugEvents, logger)
	}

	policy := approval.DefaultPolicy()
	if approvalMode != "" {
		policy.Mode = models.PolicyMode(approvalMode)
	} else if cfg.Session.DefaultApproval != "" {
		policy.Mode = models.PolicyMode(cfg.Session.DefaultApproval)
	}
	gate := approval.New(policy, bus)

	tools := registry.New(gate, bus)
	if err := registerTools(tools, cfg); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	lifecycleCfg := lifecycle.DefaultConfig()
	if cfg.Runtime.SweepInterval > 0 {
		lifecycleCfg.SweepInterval = cfg.Runtime.SweepInterval
	}
	if cfg.Runtime.GraceWindow > 0 {
		lifecycleCfg.GraceWindow = cfg.Runtime.GraceWindow
	}
	if cfg.Runtime.ShutdownGrace > 0 {
		lifecycleCfg.ShutdownGrace = cfg.Runtime.ShutdownGrace
	}
	lifecycleMgr := lifecycle.New(lifecycleCfg, bus)
	if err := lifecycleMgr.Start(); err != nil {
		return nil, fmt.Errorf("start lifecycle manager: %w", err)
	}

	drafter, err := buildLLMClient(cfg)
	if err != nil {
		return nil, err
	}
	plan := planner.New(drafter)

	execCfg := executor.DefaultConfig()
	if cfg.Runtime.MaxConcurrentSteps > 0 {
		execCfg.MaxConcurrentSteps = cfg.Runtime.MaxConcurrentSteps
	}
	stepExecutor := executor.New(execCfg, tools)

	spawn := spawner.New(spawner.Config{
		MaxConcurrentAgents: cfg.Runtime.MaxConcurrentAgents,
		Permissions:         perms,
		Lifecycle:           lifecycleMgr,
		Bus:                 bus,
		Steps:               drafter,
		Executor:            tools,
	})

	sessionStore, err := buildSessionStore(cfg)
	if err != nil {
		return nil, err
	}

	coordinator := orchestrator.New(orchestrator.Config{
		Planner:        plan,
		Executor:       stepExecutor,
		Agents:         spawn,
		Lifecycle:      lifecycleMgr,
		Bus:            bus,
		Snapshots:      sessionStore,
		FallbackToMain: true,
	})

	storageStore, err := buildStorageStore(cfg)
	if err != nil {
		return nil, err
	}

	memManager, err := buildMemoryManager(cfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:          cfg,
		logger:       logger,
		shutdown:     shutdownTracer,
		bus:          bus,
		metrics:      metrics,
		debugEvents:  debugEvents,
		events:       eventStore,
		eventBridge:  eventBridge,
		perms:        perms,
		approvals:    gate,
		tools:        tools,
		lifecycle:    lifecycleMgr,
		spawner:      spawn,
		coordinator:  coordinator,
		sessionStore: sessionStore,
		storageStore: storageStore,
		memory:       memManager,
		basePermissions: models.Permissions{
			MaxToolCalls: cfg.Tools.Execution.MaxToolCalls,
		},
	}
	return rt, nil
}

// Close releases everything the runtime started: the lifecycle sweeper and
// the OTLP trace exporter.
func (rt *runtime) Close(ctx context.Context) {
	rt.lifecycle.Shutdown()
	if rt.debugEvents != nil {
		rt.debugEvents.Close()
	}
	if rt.shutdown != nil {
		_ = rt.shutdown(ctx)
	}
}

// warnf adapts rt.logger to the config.WatchFile(onWarn) signature.
func (rt *runtime) warnf(msg string, args ...any) {
	rt.logger.Warn(context.Background(), msg, args...)
}

// streamDebugEvents drains a ChanSink to the logger for the lifetime of a
// --debug run, giving an operator a live feed of every non-droppable
// lifecycle/tool/approval event alongside sampled progress updates.
func streamDebugEvents(sink *eventbus.ChanSink, logger *observability.Logger) {
	for e := range sink.Events() {
		logger.Debug(context.Background(), "event", "type", string(e.Type), "agentId", e.AgentID)
	}
}

func buildLLMClient(cfg *config.Config) (*llm.AnthropicClient, error) {
	provider, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]
	if !ok {
		return nil, fmt.Errorf("no llm provider configured for %q", cfg.LLM.DefaultProvider)
	}
	return llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:       provider.APIKey,
		BaseURL:      provider.BaseURL,
		DefaultModel: provider.DefaultModel,
	})
}

func registerTools(reg *registry.Registry, cfg *config.Config) error {
	workspace := "."

	execManager := exec.NewManager(workspace)
	if err := reg.Register(exec.NewExecTool("exec", execManager)); err != nil {
		return err
	}
	if err := reg.Register(exec.NewProcessTool(execManager)); err != nil {
		return err
	}

	filesCfg := files.Config{Workspace: workspace}
	if err := reg.Register(files.NewReadTool(filesCfg)); err != nil {
		return err
	}
	if err := reg.Register(files.NewWriteTool(filesCfg)); err != nil {
		return err
	}
	if err := reg.Register(files.NewEditTool(filesCfg)); err != nil {
		return err
	}
	if err := reg.Register(files.NewApplyPatchTool(filesCfg)); err != nil {
		return err
	}

	if cfg.Tools.MemorySearch.Enabled {
		msCfg := &memorysearch.Config{
			Directory:     cfg.Tools.MemorySearch.Directory,
			MemoryFile:    cfg.Tools.MemorySearch.MemoryFile,
			WorkspacePath: workspace,
			MaxResults:    cfg.Tools.MemorySearch.MaxResults,
			MaxSnippetLen: cfg.Tools.MemorySearch.MaxSnippetLen,
			Mode:          cfg.Tools.MemorySearch.Mode,
		}
		if err := reg.Register(memorysearch.NewMemorySearchTool(msCfg)); err != nil {
			return err
		}
		if err := reg.Register(memorysearch.NewMemoryGetTool(msCfg)); err != nil {
			return err
		}
	}

	if cfg.Tools.WebSearch.Enabled {
		if err := reg.Register(websearch.NewWebSearchTool(&websearch.Config{
			BraveAPIKey: cfg.Tools.WebSearch.BraveAPIKey,
			SearXNGURL:  cfg.Tools.WebSearch.URL,
		})); err != nil {
			return err
		}
		if err := reg.Register(websearch.NewWebFetchTool(&websearch.FetchConfig{})); err != nil {
			return err
		}
	}

	return nil
}

func buildSessionStore(cfg *config.Config) (sessions.Store, error) {
	if cfg.Database.URL == "" {
		return sessions.NewMemoryStore(), nil
	}
	return sessions.NewCockroachStoreFromDSN(cfg.Database.URL, &sessions.CockroachConfig{
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
}

func buildStorageStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Database.URL == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewCockroachStoreFromDSN(cfg.Database.URL, &storage.CockroachConfig{
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
}

func buildMemoryManager(cfg *config.Config) (*memory.Manager, error) {
	if !cfg.VectorMemory.Enabled {
		return nil, nil
	}
	provider, err := memory.NewEmbeddingProvider(cfg.VectorMemory.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("build embeddings provider: %w", err)
	}
	return memory.NewManager(&cfg.VectorMemory, provider)
}
