// Package guard runs the Discord guard bot: verification on join, the keyword filter and the
// /guard admin command.
package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/groupguard/src/actions/core"
	"github.com/stake-plus/groupguard/src/config"
	"github.com/stake-plus/groupguard/src/data"
	"github.com/stake-plus/groupguard/src/discord"
	domain "github.com/stake-plus/groupguard/src/guard"
	"github.com/stake-plus/groupguard/src/guard/admin"
	"github.com/stake-plus/groupguard/src/guard/cache"
	"github.com/stake-plus/groupguard/src/guard/filter"
	"github.com/stake-plus/groupguard/src/guard/handlers"
	"github.com/stake-plus/groupguard/src/guard/store"
	"github.com/stake-plus/groupguard/src/guard/verify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var _ core.Module = (*Module)(nil)

type Module struct {
	config     *config.GuardConfig
	log        *zap.Logger
	session    *discordgo.Session
	store      store.Store
	backend    cache.Backend
	cache      *cache.Cache
	platform   *discord.Platform
	verifier   *verify.Orchestrator
	dispatcher *handlers.Dispatcher
	admin      *admin.Service
	janitor    *Janitor
	sink       domain.EventSink
	closeSink  func() error

	mu         sync.Mutex
	runtimeCtx context.Context
	cancel     context.CancelFunc
}

func NewModule(ctx context.Context, cfg *config.GuardConfig, st store.Store, log *zap.Logger) (*Module, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("guard: discord token is not configured")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	m := &Module{
		config:  cfg,
		log:     log,
		session: session,
		store:   st,
		sink:    domain.NopSink{},
	}

	m.backend = cache.NewBackend(ctx, cfg.CacheBackend, cfg.RedisURL, log)
	m.cache = cache.New(st, m.backend, cfg.CacheTTL, log)
	m.admin = admin.NewService(m.cache, log.Named("admin"))

	if cfg.AuditStream {
		if rdb, err := data.NewRedis(ctx, cfg.RedisURL); err != nil {
			log.Warn("guard: audit stream disabled", zap.Error(err))
		} else {
			m.sink = data.NewStreamSink(rdb, 0)
			m.closeSink = rdb.Close
		}
	}

	m.platform = discord.NewPlatform(session, discord.PlatformConfig{
		RestrictedRoleID:   cfg.RestrictedRoleID,
		RestrictedRoleName: cfg.RestrictedRoleName,
		GuardChannelID:     cfg.GuardChannelID,
	}, log.Named("discord"))

	m.verifier = verify.New(m.platform, st, m.cache, verify.NewTimerScheduler(), m.sink, log.Named("verify"),
		verify.Options{RetryBackoff: cfg.RetryBackoff})
	m.dispatcher = handlers.New(m.platform, m.verifier, filter.New(m.cache, log.Named("filter")), m.sink, log.Named("handlers"),
		handlers.Options{
			NoticeTTL:   cfg.NoticeTTL,
			NoticeRate:  rate.Every(cfg.NoticeInterval),
			NoticeBurst: cfg.NoticeBurst,
		})
	m.janitor = NewJanitor(st, cfg.PurgeInterval, cfg.PurgeGrace, log.Named("janitor"),
		func() int { return m.dispatcher.PruneLimiters(limiterIdle) },
		func() int { return m.platform.PruneInteractions(interactionTTL) },
		evictor(m.backend),
	)

	m.initHandlers()
	return m, nil
}

// Name implements actions.Module.
func (m *Module) Name() string { return "guard" }

// Admin is the settings surface shared with the HTTP API so both invalidate the same cache.
func (m *Module) Admin() *admin.Service { return m.admin }

func (m *Module) initHandlers() {
	m.session.AddHandler(m.onReady)
	m.session.AddHandler(m.onGuildMemberAdd)
	m.session.AddHandler(m.onMessageCreate)
	m.session.AddHandler(m.onInteractionCreate)

	m.session.AddHandler(m.platform.OnRoleDelete)
	m.session.AddHandler(m.platform.OnRoleUpdate)
	m.session.AddHandler(m.platform.OnChannelDelete)
	m.session.AddHandler(m.platform.OnGuildUpdate)
	m.session.AddHandler(m.platform.OnGuildDelete)
}

// runtime returns the context of the running module, or nil once it has stopped.
func (m *Module) runtime() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runtimeCtx
}

func (m *Module) setRuntime(ctx context.Context, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runtimeCtx, m.cancel = ctx, cancel
}

// clearRuntime cancels the running context. Event handlers still in flight see a nil runtime.
func (m *Module) clearRuntime() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.runtimeCtx, m.cancel = nil, nil
}

func (m *Module) Start(ctx context.Context) error {
	runtimeCtx, cancel := context.WithCancel(ctx)
	m.setRuntime(runtimeCtx, cancel)

	n, err := m.verifier.Resume(runtimeCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("guard: resume pending verifications: %w", err)
	}
	m.log.Info("guard: pending verifications resumed", zap.Int("count", n))

	if err := m.session.Open(); err != nil {
		m.verifier.Stop()
		cancel()
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	go m.janitor.Run(runtimeCtx)
	return nil
}

func (m *Module) Stop(ctx context.Context) {
	m.clearRuntime()

	if m.session != nil {
		if err := m.session.Close(); err != nil {
			m.log.Warn("guard: closing discord session", zap.Error(err))
		}
	}
	m.dispatcher.Wait()
	m.verifier.Stop()
	if m.closeSink != nil {
		_ = m.closeSink()
	}
}
