package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/craftercms/engine-sub000/internal/config"
	"github.com/craftercms/engine-sub000/internal/tenants"
	"github.com/craftercms/engine-sub000/internal/ui"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage the site database used by the sqlite tenant resolver",
	Long: `The sites command group edits the list of sites kept in the site database.
A host configured with tenants.resolver=sqlite picks the changes up on its
next sync.`,
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sites",
	Args:  cobra.NoArgs,
	RunE:  runSitesList,
}

var sitesAddCmd = &cobra.Command{
	Use:   "add <site>...",
	Short: "Register sites",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSitesAdd,
}

var sitesRemoveCmd = &cobra.Command{
	Use:   "remove <site>...",
	Short: "Unregister sites",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSitesRemove,
}

func init() {
	sitesCmd.PersistentFlags().String("db", "", "site database path (default .engine/sites.db)")
	_ = viper.BindPFlag("tenants.db", sitesCmd.PersistentFlags().Lookup("db"))

	sitesCmd.AddCommand(sitesListCmd, sitesAddCmd, sitesRemoveCmd)
	rootCmd.AddCommand(sitesCmd)
}

// openSites opens the configured site database.
func openSites(cmd *cobra.Command) (*tenants.SQLiteResolver, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return openSiteDB(cmd.Context(), cfg.Tenants.DB)
}

func runSitesList(cmd *cobra.Command, _ []string) error {
	db, err := openSites(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.Sites(cmd.Context())
	if err != nil {
		return err
	}
	ui.NewWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr()).Sites(list)
	return nil
}

func runSitesAdd(cmd *cobra.Command, args []string) error {
	db, err := openSites(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	printer := ui.NewWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())
	for _, name := range args {
		if err := db.Add(cmd.Context(), name); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		printer.Success("added " + name)
	}
	return nil
}

func runSitesRemove(cmd *cobra.Command, args []string) error {
	db, err := openSites(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	printer := ui.NewWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())
	for _, name := range args {
		if err := db.Remove(cmd.Context(), name); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
		printer.Success("removed " + name)
	}
	return nil
}
