package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"keygate/internal/daemonctl"
	"keygate/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var statusJSON bool

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the keygate daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonctl.ResolveDaemonBinary()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the keygate daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Releasing hosted sessions...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the keygate daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonctl.ResolveDaemonBinary()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, session, and ledger status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, statusResp)
			}
			renderStatus(cmd, ctx, statusResp)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit status as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(cmd *cobra.Command, ctx *commandContext, statusResp *ipc.StatusResponse) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	daemonLines := make([]statusLine, 0, 4)
	if statusResp.Running {
		daemonLines = append(daemonLines, statusLine{"Daemon", statusOK, fmt.Sprintf("Running (pid %d)", statusResp.PID)})
	} else {
		daemonLines = append(daemonLines, statusLine{"Daemon", statusWarn, "Not running"})
	}
	daemonLines = append(daemonLines, statusLine{"Socket", statusInfo, ctx.socketPath()})
	if statusResp.APIAddr != "" {
		daemonLines = append(daemonLines, statusLine{"HTTP API", statusInfo, statusResp.APIAddr})
	}
	if statusResp.LedgerDBPath != "" {
		daemonLines = append(daemonLines, statusLine{"Ledger DB", statusInfo, statusResp.LedgerDBPath})
	}
	writeSectionHeader(stdout, "Daemon", colorize)
	writeStatusLines(stdout, daemonLines, colorize)
	fmt.Fprintln(stdout)

	failKind := statusOK
	if statusResp.LedgerFailed > 0 {
		failKind = statusWarn
	}
	writeSectionHeader(stdout, "Ledger", colorize)
	writeStatusLines(stdout, []statusLine{
		{"Recorded", statusInfo, strconv.Itoa(statusResp.LedgerTotal)},
		{"Failures", failKind, strconv.Itoa(statusResp.LedgerFailed)},
	}, colorize)
	fmt.Fprintln(stdout)

	writeSectionHeader(stdout, "Sessions", colorize)
	if len(statusResp.Sessions) == 0 {
		fmt.Fprintln(stdout, "No hosted sessions")
		return
	}
	fmt.Fprint(stdout, renderSessionTable(statusResp.Sessions))
	fmt.Fprintln(stdout)
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
