package actions

import (
	"context"
	"fmt"

	"github.com/stake-plus/groupguard/src/actions/adminapi"
	guardmodule "github.com/stake-plus/groupguard/src/actions/guard"
	"github.com/stake-plus/groupguard/src/config"
	"github.com/stake-plus/groupguard/src/guard/store"
	"go.uber.org/zap"
)

// StartAll wires up the guard bot and, when configured, the admin API, then starts the manager.
func StartAll(ctx context.Context, cfg *config.GuardConfig, st store.Store, log *zap.Logger) (*Manager, error) {
	mgr := NewManager(log)

	guardMod, err := guardmodule.NewModule(ctx, cfg, st, log.Named("guard"))
	if err != nil {
		return nil, fmt.Errorf("actions: init guard module: %w", err)
	}
	if err := mgr.Add(guardMod); err != nil {
		return nil, fmt.Errorf("actions: add guard module: %w", err)
	}

	if cfg.APIEnabled {
		if err := mgr.Add(adminapi.NewModule(cfg, guardMod.Admin(), log.Named("api"))); err != nil {
			return nil, fmt.Errorf("actions: add admin api module: %w", err)
		}
	} else {
		log.Info("actions: admin api disabled via configuration")
	}

	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}

	return mgr, nil
}
