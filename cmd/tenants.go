package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/craftercms/engine-sub000/internal/config"
	"github.com/craftercms/engine-sub000/internal/lifecycle"
	"github.com/craftercms/engine-sub000/internal/tenants"
)

// openTenants builds the tenant list resolver selected by cfg. The returned
// func releases it.
func openTenants(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (lifecycle.TenantLister, func(), error) {
	switch cfg.Tenants.Resolver {
	case config.ResolverStatic:
		log.Infow("using static site list", "sites", len(cfg.Tenants.Static))
		return tenants.StaticResolver{Names: cfg.Tenants.Static}, func() {}, nil
	case config.ResolverSQLite:
		r, err := openSiteDB(ctx, cfg.Tenants.DB)
		if err != nil {
			return nil, nil, err
		}
		log.Infow("using site database", "db", cfg.Tenants.DB)
		return r, func() {
			if err := r.Close(); err != nil {
				log.Warnw("closing site database", "error", err)
			}
		}, nil
	default:
		log.Infow("using site folders", "root", cfg.SitesRoot)
		return tenants.FolderResolver{Root: cfg.SitesRoot}, func() {}, nil
	}
}

// openSiteDB opens the site database, creating its folder.
func openSiteDB(ctx context.Context, path string) (*tenants.SQLiteResolver, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("site database: %w", err)
	}
	r, err := tenants.OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open site database: %w", err)
	}
	return r, nil
}
