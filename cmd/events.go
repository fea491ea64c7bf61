package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/domain"
)

var eventsCmd = &cobra.Command{
	Use:   "events [SERVICE...]",
	Short: "Stream container lifecycle events for the project",
	Long: `Streams the engine's event feed filtered to this project's containers,
one event per line, until interrupted. Events from containers whose service
is no longer in the configuration are dropped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		since, _ := cmd.Flags().GetString("since")
		until, _ := cmd.Flags().GetString("until")

		var window domain.EventWindow
		if window.Since, err = parseEventTime(since); err != nil {
			return err
		}
		if window.Until, err = parseEventTime(until); err != nil {
			return err
		}

		events, errs, err := svc.StreamEvents(cmd.Context(), args, window)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if asJSON {
					if err := enc.Encode(eventJSON(ev)); err != nil {
						return err
					}
				} else {
					fmt.Println(formatEvent(ev))
				}
			case err, ok := <-errs:
				if ok && err != nil {
					return err
				}
				return nil
			}
		}
	},
}

// parseEventTime accepts an absolute RFC 3339 timestamp or a relative
// duration like "10m", counted back from now. "" means unbounded.
func parseEventTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or a duration like 10m", s)
	}
	return time.Now().Add(-d), nil
}

// formatEvent renders one event in the classic human-readable form:
// <timestamp> container <action> <id> (attr=value, ...)
func formatEvent(ev domain.Event) string {
	keys := make([]string, 0, len(ev.Attributes))
	for k := range ev.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]string, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, k+"="+ev.Attributes[k])
	}
	return fmt.Sprintf("%s container %s %s (%s)",
		ev.Timestamp.Format("2006-01-02 15:04:05.000000"),
		ev.Action, ev.ContainerID, strings.Join(attrs, ", "))
}

func eventJSON(ev domain.Event) map[string]any {
	return map[string]any{
		"time":       ev.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
		"type":       "container",
		"action":     ev.Action,
		"id":         ev.ContainerID,
		"service":    ev.Service,
		"attributes": ev.Attributes,
	}
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().Bool("json", false, "output events as JSON, one object per line")
	eventsCmd.Flags().String("since", "", "replay events after this time (RFC 3339 or relative like 10m)")
	eventsCmd.Flags().String("until", "", "stop streaming events at this time")
}
