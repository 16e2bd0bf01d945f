// Package app assembles livebot from its configuration: the database, the
// model provider, the action catalogue, the domain service, the turn
// pipeline and the Matrix transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/approvals"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/bot"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/catalog"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/history"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/llm"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/matrix"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/normalize"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/ratelimit"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/store"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/tagparse"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/workflow"
)

const limiterPruneEvery = 10 * time.Minute

// Provider names accepted in ProviderConfig.Name.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	Name       string
	Gemini     llm.Config
	OpenRouter llm.Config
	// Timeout bounds each attempt; retries get a fresh budget.
	Timeout time.Duration
	Retry   llm.RetryPolicy
}

// Config holds everything needed to run livebot.
type Config struct {
	DatabasePath string
	// HTTPAddr enables the health server when non-empty.
	HTTPAddr string
	Matrix   matrix.Config
	Provider ProviderConfig

	// CatalogPath overrides the embedded action catalogue.
	CatalogPath   string
	TagKeyword    string
	DomainTimeout time.Duration
	MinInterval   time.Duration
	MaxDepth      int
	HistoryLimit  int
	HistoryMaxAge time.Duration
	Location      *time.Location

	// StartupNotice is posted to every room once the bot is running.
	StartupNotice string
}

// Deps are the pieces NewBot cannot build from Config alone.
type Deps struct {
	Provider llm.Provider
	Catalog  *catalog.Catalog
	Service  domain.Service
	History  history.Store
	// Audit is optional.
	Audit *approvals.Audit
}

// NewProvider builds the configured provider wrapped with the per-attempt
// timeout and the retry policy.
func NewProvider(ctx context.Context, cfg ProviderConfig) (llm.Provider, error) {
	var (
		p   llm.Provider
		err error
	)
	switch cfg.Name {
	case "", ProviderGemini:
		p, err = llm.NewGemini(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		if cfg.OpenRouter.APIKey == "" {
			return nil, errors.New("app: OPENROUTER_API_KEY is required for the openrouter provider")
		}
		p = llm.NewOpenRouter(cfg.OpenRouter)
	default:
		return nil, fmt.Errorf("app: unknown provider %q (use %s or %s)", cfg.Name, ProviderGemini, ProviderOpenRouter)
	}
	if err != nil {
		return nil, err
	}
	return llm.WithRetry(llm.WithTimeout(p, cfg.Timeout), cfg.Retry), nil
}

// LoadCatalog returns the catalogue at path, or the embedded one when path
// is empty.
func LoadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

// NewBot wires the turn pipeline.
func NewBot(cfg *Config, deps Deps) *bot.Bot {
	keyword := cfg.TagKeyword
	if keyword == "" {
		keyword = tagparse.DefaultKeyword
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	svc := domain.WithTimeout(deps.Service, cfg.DomainTimeout)
	gate := approvals.NewGate(svc, approvals.NewClassifier(deps.Provider), deps.Audit)
	parser := tagparse.New(keyword)

	orch := workflow.New(workflow.Config{
		Provider:   deps.Provider,
		Parser:     parser,
		Normalizer: normalize.New(deps.Catalog, keyword),
		Service:    svc,
		Catalog:    deps.Catalog,
		Gate:       gate,
		MaxDepth:   cfg.MaxDepth,
		Location:   loc,
	})
	return bot.New(bot.Config{
		Limiter:       ratelimit.NewMinInterval(cfg.MinInterval, nil),
		History:       deps.History,
		Gate:          gate,
		Orchestrator:  orch,
		HistoryLimit:  cfg.HistoryLimit,
		HistoryMaxAge: cfg.HistoryMaxAge,
	})
}

// App is the Matrix-served bot.
type App struct {
	config *Config
	store  *store.Store
	matrix *matrix.Client
	bot    *bot.Bot
	health *HealthServer
}

// New opens the database and builds every component. Nothing connects to
// the network until Run.
func New(ctx context.Context, config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cat, err := LoadCatalog(config.CatalogPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load catalogue: %w", err)
	}
	slog.Info("action catalogue ready", "actions", len(cat.Names()), "override", config.CatalogPath != "")

	provider, err := NewProvider(ctx, config.Provider)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}
	slog.Info("model provider ready", "provider", provider.Name())

	loc := config.Location
	if loc == nil {
		loc = time.Local
	}
	hist := history.NewSQLStore(st.DB())
	b := NewBot(config, Deps{
		Provider: provider,
		Catalog:  cat,
		Service:  domain.NewWarehouse(time.Now, loc),
		History:  hist,
		Audit:    approvals.NewAudit(st.DB()),
	})

	mcfg := config.Matrix
	mcfg.DB = st.DB()
	slog.Info("connecting to Matrix", "homeserver", mcfg.Homeserver)
	mc, err := matrix.New(&mcfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{config: config, store: st, matrix: mc, bot: b}
	if config.HTTPAddr != "" {
		a.health = NewHealthServer(config.HTTPAddr, HealthSources{
			Transcripts:   hist,
			Provider:      provider.Name(),
			Actions:       len(cat.Names()),
			TrackedActors: b.TrackedActors,
		})
		slog.Info("health server configured", "addr", config.HTTPAddr)
	}
	return a, nil
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.health != nil {
		if err := a.health.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}
	if a.config.StartupNotice != "" {
		for _, room := range a.config.Matrix.Rooms {
			if err := a.matrix.SendNotice(ctx, room, a.config.StartupNotice); err != nil {
				slog.Warn("failed to send startup notice", "room", room, "err", err)
			}
		}
	}

	go a.pruneLimiter(ctx)

	slog.Info("livebot is running; press Ctrl+C to stop")
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func (a *App) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterPruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.bot.PruneLimiter(limiterPruneEvery); n > 0 {
				slog.Debug("app: pruned idle actors from rate limiter", "count", n)
			}
		}
	}
}

// Stop releases the Matrix client and the database.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()
	if a.health != nil {
		a.health.Stop()
	}
	slog.Info("closing database")
	if err := a.store.Close(); err != nil {
		slog.Warn("close database", "err", err)
	}
}

func (a *App) handleMessage(ctx context.Context, msg matrix.Message) {
	if err := a.matrix.SetTyping(ctx, msg.RoomID, true, 30*time.Second); err != nil {
		slog.Debug("set typing", "room", msg.RoomID, "err", err)
	}
	defer func() {
		if err := a.matrix.SetTyping(ctx, msg.RoomID, false, 0); err != nil {
			slog.Debug("clear typing", "room", msg.RoomID, "err", err)
		}
	}()

	reply, ok, err := a.bot.Handle(ctx, bot.Incoming{
		Conversation: msg.RoomID,
		Actor:        msg.Sender,
		Text:         msg.Body,
	})
	if err != nil {
		slog.Error("turn failed", "room", msg.RoomID, "event", msg.EventID, "trace_id", reply.TraceID, "err", err)
	}
	if !ok || reply.Text == "" {
		return
	}
	if err := a.matrix.SendNotice(ctx, msg.RoomID, reply.Text); err != nil {
		slog.Error("failed to send reply", "room", msg.RoomID, "trace_id", reply.TraceID, "err", err)
	}
}
