package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventCreateCmd, eventStartCmd, eventPauseCmd,
		eventResumeCmd, eventCloseCmd, eventStatusCmd, eventGlossaryCmd)
}

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Manage live events on a running daemon",
}

// apiClient talks to the local daemon's HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient() *apiClient {
	cfg := loadConfig()
	return &apiClient{
		base: "http://" + cfg.HTTP.Listen,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) do(method, path string, body []byte) (map[string]any, error) {
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		if msg, ok := out["error"].(string); ok {
			return nil, fmt.Errorf("%s", msg)
		}
		return nil, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	return out, nil
}

var eventCreateCmd = &cobra.Command{
	Use:   "create [event-id]",
	Short: "Register an event, generating an id when omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body []byte
		if len(args) == 1 {
			body = []byte(fmt.Sprintf(`{"event_id":%q}`, args[0]))
		}
		out, err := newAPIClient().do(http.MethodPost, "/events", body)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "event %v created (agent %v)\n", out["event_id"], out["agent_id"])
		return nil
	},
}

func eventActionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <event-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := newAPIClient().do(http.MethodPost, "/events/"+args[0]+"/"+action, nil); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "event %s: %s ok\n", args[0], action)
			return nil
		},
	}
}

var (
	eventStartCmd  = eventActionCmd("start", "Start processing for an event", "start")
	eventPauseCmd  = eventActionCmd("pause", "Pause processing for an event", "pause")
	eventResumeCmd = eventActionCmd("resume", "Resume a paused event", "resume")
	eventCloseCmd  = eventActionCmd("close", "Close an event and its sessions", "close")
)

var eventStatusCmd = &cobra.Command{
	Use:   "status <event-id>",
	Short: "Show a live event's status snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := newAPIClient().do(http.MethodGet, "/events/"+args[0]+"/status", nil)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

var eventGlossaryCmd = &cobra.Command{
	Use:   "glossary <event-id> <file.yaml>",
	Short: "Upload a glossary YAML file for an event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read glossary file: %w", err)
		}
		out, err := newAPIClient().do(http.MethodPost, "/events/"+args[0]+"/glossary", data)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "glossary updated: %v terms\n", out["terms"])
		return nil
	},
}
