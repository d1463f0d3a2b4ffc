package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"keygate/internal/ipc"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage hosted DRM sessions",
	}

	sessionCmd.AddCommand(newSessionOpenCommand(ctx))
	sessionCmd.AddCommand(newSessionCloseCommand(ctx))
	sessionCmd.AddCommand(newSessionListCommand(ctx))
	sessionCmd.AddCommand(newSessionShowCommand(ctx))

	return sessionCmd
}

func newSessionOpenCommand(ctx *commandContext) *cobra.Command {
	var scheme string
	var mimeType string
	var initData string
	var initDataFile string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "open <content-id>",
		Short: "Open a DRM session for a content item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentID := strings.TrimSpace(args[0])
			if contentID == "" {
				return errors.New("content id is required")
			}

			entries, err := buildInitData(ctx, scheme, mimeType, initData, initDataFile)
			if err != nil {
				return err
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionOpen(ipc.SessionOpenRequest{
					ContentID: contentID,
					Scheme:    scheme,
					InitData:  entries,
				})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Session)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Opened session for %s (%s)\n", resp.Session.ContentID, resp.Session.Scheme)
				fmt.Fprintf(stdout, "State: %s  References: %d\n", resp.Session.StateLabel, resp.Session.OpenCount)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&scheme, "scheme", "", "Protection scheme (widevine, playready, clearkey)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "video/mp4", "Init data MIME type")
	cmd.Flags().StringVar(&initData, "init-data", "", "Base64-encoded init data")
	cmd.Flags().StringVar(&initDataFile, "init-data-file", "", "Path to a raw init data file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the session as JSON")
	return cmd
}

func newSessionCloseCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "close <content-id>",
		Short: "Release a reference on a hosted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentID := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionClose(contentID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				if resp.Released {
					fmt.Fprintf(stdout, "Session for %s released\n", contentID)
					return nil
				}
				fmt.Fprintf(stdout, "Closed one reference on %s (%d remaining)\n", contentID, resp.Session.OpenCount)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the result as JSON")
	return cmd
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hosted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionList()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Sessions)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(stdout, "No hosted sessions")
					return nil
				}
				fmt.Fprint(stdout, renderSessionTable(resp.Sessions))
				fmt.Fprintln(stdout)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit sessions as JSON")
	return cmd
}

func newSessionShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <content-id>",
		Short: "Describe a hosted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentID := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionDescribe(contentID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Session)
				}
				session := resp.Session
				stdout := cmd.OutOrStdout()
				lines := []statusLine{
					{"Content", statusInfo, session.ContentID},
					{"Scheme", statusInfo, session.Scheme},
					{"State", sessionStateKind(session.State), session.StateLabel},
					{"References", statusInfo, strconv.Itoa(session.OpenCount)},
					{"Secure decoder", statusInfo, yesNo(session.SecureDecoder)},
				}
				if session.OpenedAt != "" {
					lines = append(lines, statusLine{"Opened", statusInfo, session.OpenedAt})
				}
				if session.ErrorMessage != "" {
					lines = append(lines, statusLine{"Error", statusError, session.ErrorMessage})
				}
				writeStatusLines(stdout, lines, shouldColorize(stdout))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the session as JSON")
	return cmd
}

// buildInitData assembles the wire init data from CLI flags. Exactly one of
// the inline and file sources may be set; the scheme defaults to the
// configured default when unset.
func buildInitData(ctx *commandContext, scheme, mimeType, inline, file string) ([]ipc.InitDataEntry, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)
	if inline == "" && file == "" {
		return nil, errors.New("init data is required (use --init-data or --init-data-file)")
	}
	if inline != "" && file != "" {
		return nil, errors.New("use only one of --init-data and --init-data-file")
	}

	encoded := inline
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read init data file %q: %w", file, err)
		}
		encoded = base64.StdEncoding.EncodeToString(raw)
	} else if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		return nil, fmt.Errorf("decode init data: %w", err)
	}

	entryScheme := strings.TrimSpace(scheme)
	if entryScheme == "" {
		if cfg := ctx.configValue(); cfg != nil {
			entryScheme = cfg.Sessions.DefaultScheme
		}
	}
	if entryScheme == "" {
		return nil, errors.New("scheme is required (use --scheme or set sessions.default_scheme)")
	}

	return []ipc.InitDataEntry{{
		Scheme:   entryScheme,
		MimeType: mimeType,
		Data:     encoded,
	}}, nil
}

func renderSessionTable(sessions []ipc.SessionView) string {
	rows := make([][]string, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, []string{
			session.ContentID,
			session.Scheme,
			session.StateLabel,
			strconv.Itoa(session.OpenCount),
			yesNo(session.SecureDecoder),
		})
	}
	return renderTable(sessionColumns, rows)
}
