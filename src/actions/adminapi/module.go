// Package adminapi runs the admin HTTP API as an actions module.
package adminapi

import (
	"context"
	"errors"

	"github.com/stake-plus/groupguard/src/actions/core"
	"github.com/stake-plus/groupguard/src/api"
	"github.com/stake-plus/groupguard/src/config"
	"github.com/stake-plus/groupguard/src/guard/admin"
	"go.uber.org/zap"
)

var _ core.Module = (*Module)(nil)

type Module struct {
	server *api.Server
	log    *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewModule(cfg *config.GuardConfig, svc *admin.Service, log *zap.Logger) *Module {
	return &Module{
		server: api.New(api.Config{
			Addr:        cfg.APIAddr,
			JWTSecret:   []byte(cfg.JWTSecret),
			CORSOrigins: cfg.CORSOrigins,
		}, svc, log),
		log: log,
	}
}

func (m *Module) Name() string { return "admin-api" }

func (m *Module) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		if err := m.server.ListenAndServe(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error("adminapi: server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (m *Module) Stop(ctx context.Context) {
	if m.cancel == nil {
		return
	}
	m.cancel()
	select {
	case <-m.done:
	case <-ctx.Done():
	}
}
