package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
	"github.com/go-go-golems/chatweb/pkg/conversation"
	"github.com/go-go-golems/chatweb/pkg/export"
	"github.com/go-go-golems/chatweb/pkg/transcript"
	"github.com/go-go-golems/chatweb/pkg/ui"
)

func newChatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chats",
		Aliases: []string{"chat-records"},
		Short:   "Manage saved conversations",
	}
	cmd.AddCommand(
		newChatsListCommand(),
		newChatsShowCommand(),
		newChatsPickCommand(),
		newChatsRenameCommand(),
		newChatsDeleteCommand(),
		newChatsExportCommand(),
	)
	return cmd
}

func newChatsListCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			recs, err := client.ChatRecords(cmd.Context())
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs.ChatRecord, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: table, tsv, json or yaml (default table on a terminal, tsv otherwise)")
	return cmd
}

func printRecords(w io.Writer, records []chatapi.ChatRecord, output string) error {
	if output == "" {
		output = "tsv"
		if stdoutIsTerminal() {
			output = "table"
		}
	}
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(records), "encode json")
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "tsv":
		for _, rec := range records {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ChatID, rec.UpdatedAt.Format("2006-01-02 15:04:05"), rec.Subject)
		}
		return nil
	case "table":
		if len(records) == 0 {
			_, _ = fmt.Fprintln(w, "No saved conversations")
			return nil
		}
		rows := make([][]string, 0, len(records))
		for _, rec := range records {
			rows = append(rows, []string{rec.ChatID, rec.UpdatedAt.Local().Format("2006-01-02 15:04"), rec.Subject})
		}
		header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
		cell := lipgloss.NewStyle().Padding(0, 1)
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return header
				}
				return cell
			}).
			Headers("CHAT", "UPDATED", "SUBJECT").
			Rows(rows...)
		_, _ = fmt.Fprintln(w, t.String())
		return nil
	default:
		return errors.Errorf("unsupported output: %s (supported: table, tsv, json, yaml)", output)
	}
}

func newChatsShowCommand() *cobra.Command {
	var stats, raw bool
	cmd := &cobra.Command{
		Use:   "show <chat>",
		Short: "Print the messages of a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			recs, err := client.ChatRecords(ctx)
			if err != nil {
				return err
			}
			rec, err := findRecord(recs.ChatRecord, args[0])
			if err != nil {
				return err
			}
			ctrl := conversation.NewController(client, conversation.WithNotifier(cliNotifier(cmd.ErrOrStderr())))
			if err := ctrl.SelectSavedConversation(ctx, rec.ChatID, rec.Subject); err != nil {
				return err
			}

			var turns []transcript.Turn
			for _, t := range ctrl.Snapshot().Turns {
				if !t.Greeting {
					turns = append(turns, t)
				}
			}
			w := cmd.OutOrStdout()
			if raw || !stdoutIsTerminal() {
				for _, t := range turns {
					_, _ = fmt.Fprintf(w, "[%s]\n%s\n\n", t.Role, t.Text)
				}
			} else {
				r, err := ui.NewRenderer(ui.DetectStyle(), terminalWidth())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(w, r.RenderTranscript(turns))
			}
			if stats {
				texts := make([]string, 0, len(turns))
				for _, t := range turns {
					texts = append(texts, t.Text)
				}
				printStats(cmd.ErrOrStderr(), strings.Join(texts, "\n"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stats, "stats", false, "Print token and word counts of the conversation")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the messages without markdown rendering")
	return cmd
}

func newChatsPickCommand() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Choose a conversation with a fuzzy finder and print its chat id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdinIsTerminal() {
				return errors.New("pick needs an interactive terminal")
			}
			client, _, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			recs, err := client.ChatRecords(ctx)
			if err != nil {
				return err
			}
			convs, err := export.FetchAll(ctx, client, recs.ChatRecord, concurrency)
			if err != nil {
				return err
			}
			rec, err := ui.PickConversation(convs)
			if err != nil {
				return err
			}
			if rec == nil {
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rec.ChatID)
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", export.DefaultConcurrency, "Number of conversations fetched at once")
	return cmd
}

func newChatsRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <chat> <subject...>",
		Short: "Change the subject of a saved conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ctrl := conversation.NewController(client, conversation.WithNotifier(cliNotifier(cmd.ErrOrStderr())))
			if err := ctrl.RefreshSavedList(ctx, ""); err != nil {
				return err
			}
			rec, err := findRecord(ctrl.Snapshot().Saved, args[0])
			if err != nil {
				return err
			}
			return ctrl.RenameConversation(ctx, rec.ChatID, strings.Join(args[1:], " "))
		},
	}
}

func newChatsDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <chat>",
		Short: "Delete a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ctrl := conversation.NewController(client,
				conversation.WithNotifier(cliNotifier(cmd.ErrOrStderr())),
				conversation.WithConfirmer(confirmer(yes)),
			)
			if err := ctrl.RefreshSavedList(ctx, ""); err != nil {
				return err
			}
			rec, err := findRecord(ctrl.Snapshot().Saved, args[0])
			if err != nil {
				return err
			}
			return ctrl.DeleteConversation(ctx, rec.ChatID)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

func newChatsExportCommand() *cobra.Command {
	var format, dir string
	var concurrency int
	cmd := &cobra.Command{
		Use:   "export [chat...]",
		Short: "Write saved conversations to files",
		Long: `Write saved conversations to files, one per conversation.

Without arguments every saved conversation is exported. Use --dir - to write
everything to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.NewExporter(format)
			if err != nil {
				return err
			}
			client, _, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			recs, err := client.ChatRecords(ctx)
			if err != nil {
				return err
			}
			selected := recs.ChatRecord
			if len(args) > 0 {
				selected = make([]chatapi.ChatRecord, 0, len(args))
				for _, arg := range args {
					rec, err := findRecord(recs.ChatRecord, arg)
					if err != nil {
						return err
					}
					selected = append(selected, rec)
				}
			}

			convs, err := export.FetchAll(ctx, client, selected, concurrency)
			if err != nil {
				return err
			}
			if dir == "-" {
				for _, conv := range convs {
					if err := exporter.Export(conv, cmd.OutOrStdout()); err != nil {
						return err
					}
				}
				return nil
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, "create export directory")
			}
			for _, conv := range convs {
				path := filepath.Join(dir, export.FileName(conv, exporter.Extension()))
				if err := writeExport(exporter, conv, path); err != nil {
					return err
				}
				log.Debug().Str("chat_id", conv.Record.ChatID).Str("path", path).Msg("exported conversation")
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d conversations to %s\n", len(convs), dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Export format: md, json, jsonl, yaml or html")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to write to, - for stdout")
	cmd.Flags().IntVar(&concurrency, "concurrency", export.DefaultConcurrency, "Number of conversations fetched at once")
	return cmd
}

func writeExport(exporter export.Exporter, conv export.Conversation, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return exporter.Export(conv, f)
}
