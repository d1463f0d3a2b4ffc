package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"keygate/internal/ipc"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the exchange ledger",
	}

	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerHealthCommand(ctx))
	ledgerCmd.AddCommand(newLedgerClearCommand(ctx))

	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var kinds []string
	var contentID string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded exchanges and session events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LedgerList(ipc.LedgerListRequest{
					Kinds:     kinds,
					ContentID: contentID,
				})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Exchanges)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Exchanges) == 0 {
					fmt.Fprintln(stdout, "Ledger is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Exchanges))
				for _, entry := range resp.Exchanges {
					detail := entry.Detail
					if entry.ErrorMessage != "" {
						detail = entry.ErrorMessage
					}
					rows = append(rows, []string{
						strconv.FormatInt(entry.ID, 10),
						entry.CreatedAt,
						entry.ContentID,
						entry.Scheme,
						entry.KindLabel,
						detail,
					})
				}
				fmt.Fprint(stdout, renderTable(exchangeColumns, rows))
				fmt.Fprintln(stdout)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Filter by ledger kind (repeatable)")
	cmd.Flags().StringVar(&contentID, "content", "", "Filter by content ID")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit entries as JSON")
	return cmd
}

func newLedgerHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Summarize ledger contents and failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LedgerHealth()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				failKind := statusOK
				if resp.Failures > 0 {
					failKind = statusWarn
				}
				lines := []statusLine{
					{"Recorded", statusInfo, strconv.Itoa(resp.Total)},
					{"Exchanges", statusInfo, strconv.Itoa(resp.Exchanges)},
					{"Events", statusInfo, strconv.Itoa(resp.Events)},
					{"Failures", failKind, strconv.Itoa(resp.Failures)},
				}
				if resp.LastError != "" {
					lines = append(lines, statusLine{"Last error", statusError, resp.LastError})
				}
				writeStatusLines(stdout, lines, shouldColorize(stdout))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the summary as JSON")
	return cmd
}

func newLedgerClearCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("ledger clear removes all recorded exchanges; re-run with --yes to confirm")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LedgerClear()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d ledger entries\n", resp.Removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm removal")
	return cmd
}
