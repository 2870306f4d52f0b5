package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alekspetrov/pr-monitor/internal/dashboard"
	"github.com/alekspetrov/pr-monitor/internal/prmonitor"
)

var prRef = regexp.MustCompile(`^([^/]+)/([^#]+)#(\d+)$`)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Manage PR monitor sessions",
	}
	cmd.AddCommand(
		newMonitorStartCmd(),
		newMonitorNextStepCmd(),
		newMonitorStopCmd(),
		newMonitorDashboardCmd(),
	)
	return cmd
}

func parsePRRef(ref string) (owner, repo string, number int, err error) {
	m := prRef.FindStringSubmatch(ref)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid PR reference %q, want owner/repo#number", ref)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number in %q: %w", ref, err)
	}
	return m[1], m[2], n, nil
}

func sessionDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".pilot", "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func loadToolSurface() (*prmonitor.ToolSurface, error) {
	cfg, err := prmonitor.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return prmonitor.NewToolSurface(cfg, ghToken, true), nil
}

func printDirective(d prmonitor.Directive) {
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		fmt.Println(d.Message)
		return
	}
	fmt.Println(string(out))
}

func newMonitorStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <owner/repo#number>",
		Short: "Start monitoring a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, number, err := parsePRRef(args[0])
			if err != nil {
				return err
			}
			dir, err := sessionDir()
			if err != nil {
				return err
			}
			ts, err := loadToolSurface()
			if err != nil {
				return err
			}
			d, err := ts.Start(owner, repo, number, dir)
			if err != nil {
				return err
			}
			printDirective(d)
			return nil
		},
	}
}

func newMonitorNextStepCmd() *cobra.Command {
	var event, choice, dataJSON string

	cmd := &cobra.Command{
		Use:   "next-step <owner/repo#number>",
		Short: "Advance a monitor session with a user choice or event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, number, err := parsePRRef(args[0])
			if err != nil {
				return err
			}
			ts, err := loadToolSurface()
			if err != nil {
				return err
			}
			monitorID := fmt.Sprintf("%s/%s#%d", owner, repo, number)
			d, err := ts.NextStep(context.Background(), monitorID, event, choice, []byte(dataJSON))
			if err != nil {
				return err
			}
			printDirective(d)
			return nil
		},
	}

	cmd.Flags().StringVar(&event, "event", prmonitor.EventUserChose, "event to feed the transition engine")
	cmd.Flags().StringVar(&choice, "choice", "", "the user's chosen option, verbatim")
	cmd.Flags().StringVar(&dataJSON, "data", "", "opaque JSON payload for events that carry one (e.g. investigation results)")
	return cmd
}

func newMonitorStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <owner/repo#number>",
		Short: "Stop monitoring a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, number, err := parsePRRef(args[0])
			if err != nil {
				return err
			}
			ts, err := loadToolSurface()
			if err != nil {
				return err
			}
			monitorID := fmt.Sprintf("%s/%s#%d", owner, repo, number)
			d, err := ts.Stop(monitorID)
			if err != nil {
				return err
			}
			printDirective(d)
			return nil
		},
	}
}

func newMonitorDashboardCmd() *cobra.Command {
	var logPath string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Tail a monitor session's status log in a live view",
		RunE: func(cmd *cobra.Command, args []string) error {
			if logPath == "" {
				return fmt.Errorf("--log is required")
			}
			model := dashboard.NewModel(logPath)
			program := tea.NewProgram(model, tea.WithAltScreen())
			_, err := program.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&logPath, "log", "", "path to the session's status log")
	return cmd
}
