package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/craftercms/engine-sub000/internal/config"
	"github.com/craftercms/engine-sub000/internal/telemetry"
	"github.com/craftercms/engine-sub000/internal/ui"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "View the context lifecycle journal",
	Long: `Reads and formats the JSONL journal written by a host with telemetry_path set.

With --follow (-f), watches the file for new events (like tail -f).`,
	RunE: runTelemetry,
}

func init() {
	telemetryCmd.Flags().String("file", "", "journal to read (default: telemetry_path)")
	telemetryCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	telemetryCmd.Flags().String("site", "", "only show events for this site")
	rootCmd.AddCommand(telemetryCmd)
}

func runTelemetry(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	follow, _ := cmd.Flags().GetBool("follow")
	siteFilter, _ := cmd.Flags().GetString("site")

	if path == "" {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		path = cfg.TelemetryPath
	}
	if path == "" {
		return fmt.Errorf("telemetry: no journal configured; set telemetry_path or pass --file")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()

	printer := ui.NewWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())
	show := func(line string) {
		printJournalLine(printer, line, siteFilter)
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		show(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("telemetry: read %s: %w", path, err)
	}

	if !follow {
		return nil
	}
	return tailFollow(cmd, f, path, show)
}

// tailFollow watches the file for new data using fsnotify and passes new
// lines to show until the command context ends.
func tailFollow(cmd *cobra.Command, f *os.File, path string, show func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("telemetry: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("telemetry: watch %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("telemetry: watch %s: %w", path, err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			for {
				line, err := reader.ReadString('\n')
				show(line)
				if err != nil {
					break
				}
			}
		}
	}
}

// printJournalLine decodes one JSONL line and prints it unless it belongs to
// a site other than siteFilter.
func printJournalLine(printer *ui.Printer, line, siteFilter string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	var evt telemetry.Event
	if err := json.Unmarshal([]byte(line), &evt); err != nil {
		printer.RawLine(line)
		return
	}
	if siteFilter != "" && evt.Site != siteFilter {
		return
	}
	printer.Event(evt)
}
