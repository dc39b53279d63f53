package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/craftercms/engine-sub000/internal/server"
	"github.com/craftercms/engine-sub000/internal/ui"
)

var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "Inspect and control the contexts of a running engine",
}

var contextsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live contexts",
	Args:  cobra.NoArgs,
	RunE:  runContextsList,
}

var contextsRebuildCmd = &cobra.Command{
	Use:   "rebuild <site>",
	Short: "Rebuild the context of a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextsRebuild,
}

var contextsDestroyCmd = &cobra.Command{
	Use:   "destroy <site>",
	Short: "Destroy the context of a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextsDestroy,
}

func init() {
	contextsCmd.PersistentFlags().String("addr", "http://localhost:8080", "base URL of the running engine")
	contextsRebuildCmd.Flags().Bool("wait", false, "wait for the new context to be ready")

	contextsCmd.AddCommand(contextsListCmd, contextsRebuildCmd, contextsDestroyCmd)
	rootCmd.AddCommand(contextsCmd)
}

// adminClient calls the context admin API of a running engine.
type adminClient struct {
	base string
	http *http.Client
}

func newAdminClient(cmd *cobra.Command) *adminClient {
	addr, _ := cmd.Flags().GetString("addr")
	return &adminClient{
		base: strings.TrimRight(addr, "/") + "/api/1/site",
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// call sends the request and decodes a 2xx JSON body into out.
func (c *adminClient) call(cmd *cobra.Command, method, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, u, nil)
	if err != nil {
		return fmt.Errorf("contexts: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contexts: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("contexts: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("contexts: %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("contexts: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("contexts: decode response: %w", err)
	}
	return nil
}

func runContextsList(cmd *cobra.Command, _ []string) error {
	var list []server.ContextInfo
	if err := newAdminClient(cmd).call(cmd, http.MethodGet, "/context/list", nil, &list); err != nil {
		return err
	}
	ui.NewWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr()).Contexts(list)
	return nil
}

func runContextsRebuild(cmd *cobra.Command, args []string) error {
	wait, _ := cmd.Flags().GetBool("wait")
	q := url.Values{"site": {args[0]}}
	printer := ui.NewWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())

	if !wait {
		if err := newAdminClient(cmd).call(cmd, http.MethodPost, "/context/rebuild", q, nil); err != nil {
			return err
		}
		printer.Success("rebuild of " + args[0] + " scheduled")
		return nil
	}

	q.Set("wait", "true")
	var info server.ContextInfo
	if err := newAdminClient(cmd).call(cmd, http.MethodPost, "/context/rebuild", q, &info); err != nil {
		return err
	}
	printer.Contexts([]server.ContextInfo{info})
	return nil
}

func runContextsDestroy(cmd *cobra.Command, args []string) error {
	q := url.Values{"site": {args[0]}}
	if err := newAdminClient(cmd).call(cmd, http.MethodPost, "/context/destroy", q, nil); err != nil {
		return err
	}
	ui.NewWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr()).Success("destroyed " + args[0])
	return nil
}
