package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/craftercms/engine-sub000/internal/config"
	"github.com/craftercms/engine-sub000/internal/factory"
	"github.com/craftercms/engine-sub000/internal/siteconfig"
	"github.com/craftercms/engine-sub000/internal/tenants"
	"github.com/craftercms/engine-sub000/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:   "validate [site]...",
	Short: "Check the engine configuration and the site.toml of each site",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	printer := ui.NewWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		printer.Error(err.Error())
		return fmt.Errorf("invalid engine configuration")
	}
	printer.Success("engine configuration")

	sites := args
	if len(sites) == 0 {
		sites, err = tenants.FolderResolver{Root: cfg.SitesRoot}.List(cmd.Context())
		if err != nil {
			return err
		}
	}

	lib := builtinLibrary(zap.NewNop().Sugar())
	failed := 0
	for _, name := range sites {
		if err := validateSite(cfg.SitesRoot, name, lib.Names()); err != nil {
			printer.Error(name + ": " + err.Error())
			failed++
			continue
		}
		printer.Success(name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d site(s) invalid", failed, len(sites))
	}
	return nil
}

// validateSite parses the site.toml of name and checks that every script it
// references is provided by the builtin library.
func validateSite(sitesRoot, name string, scripts []string) error {
	if err := tenants.ValidateName(name); err != nil {
		return err
	}
	cfg, err := siteconfig.Load(filepath.Join(sitesRoot, name))
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(scripts))
	for _, s := range scripts {
		known[s] = true
	}
	if cfg.InitScript != "" && !known[cfg.InitScript] {
		return fmt.Errorf("%w: init script %q", factory.ErrMissingScript, cfg.InitScript)
	}
	for _, j := range cfg.Jobs {
		if !known[j.Script] {
			return fmt.Errorf("%w: job %q script %q", factory.ErrMissingScript, j.Name, j.Script)
		}
	}
	return nil
}
