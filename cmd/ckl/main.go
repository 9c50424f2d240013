package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"checkline/internal/app"
	"checkline/internal/config"
	"checkline/internal/db"
	"checkline/internal/domain"
	"checkline/internal/engine"
	"checkline/internal/export"
	"checkline/internal/logger"
	"checkline/internal/order"
	"checkline/internal/progress"
	"checkline/internal/server"
)

var (
	errAborted  = errors.New("aborted")
	errNotFound = errors.New("not found")
)

var lg = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "ckl",
	Short: "Checkline CLI",
	Long: `Checkline keeps a periodic inspection checklist for a site.
- Document: meta (site, year, responsible, operators, period), sections and their check items.
- Items move between todo, ok, ko and na; a ko item needs a note before the document can be exported.
- Workspace: the .checkline directory holds the working draft and the change log, not the deliverable.
- Export writes the interchange JSON; report writes the PDF (state or blank form).
- Event log: every change is recorded, view it with 'ckl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		l, err := logger.New(viper.GetString("log-level"), viper.GetString("log-format"))
		if err != nil {
			return err
		}
		lg = l
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	err := rootCmd.Execute()
	_ = lg.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CHECKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in the event log")
	rootCmd.PersistentFlags().Bool("force", false, "skip confirmations")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	for _, name := range []string{"workspace", "json", "actor-id", "force", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(newCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(closeCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(metaCmd())
	rootCmd.AddCommand(sectionCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- lifecycle ---

func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new document from the configured template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if e.Session.HasDocument() && !confirm("Discard the current draft and start a new document?", "") {
					return errAborted
				}
				doc := e.NewDocument()
				return printSummary(doc)
			})
		},
	}
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <file>",
		Short: "Load a checklist JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if e.Session.HasDocument() && !confirm("Discard the current draft and open "+args[0]+"?", "") {
					return errAborted
				}
				doc, err := e.Open(filepath.Base(args[0]), data)
				if err != nil {
					return err
				}
				return printSummary(doc)
			})
		},
	}
}

func closeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Discard the current draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Document(); err != nil {
					return err
				}
				if !confirm("Discard the current draft? Unexported changes are lost.", "") {
					return errAborted
				}
				if err := e.Close(); err != nil {
					return err
				}
				fmt.Println("Document closed")
				return nil
			})
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Put every item back to todo and clear notes and meta",
		Long:  "Reset keeps sections, items and photos; statuses, notes, timestamps and the meta block are cleared.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Document(); err != nil {
					return err
				}
				if !confirm("Reset all statuses, notes and meta?", "") {
					return errAborted
				}
				if err := e.ResetStates(); err != nil {
					return err
				}
				fmt.Println("All items reset to todo")
				return nil
			})
		},
	}
}

// --- views ---

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Document()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(doc)
				}
				m := doc.Meta
				fmt.Printf("Site: %s  Year: %s\n", m.SiteName, m.Year)
				fmt.Printf("Responsible: %s  Operators: %s\n", m.Responsible, m.Operators)
				fmt.Printf("Period: %s -> %s  Operating hours: %d\n", m.StartDate, m.EndDate, m.OperatingHours)
				if m.Notes != "" {
					fmt.Printf("Notes: %s\n", m.Notes)
				}
				fmt.Printf("Last modified: %s by %s\n\n", doc.Audit.LastModified, doc.Audit.LastModifiedBy)
				for _, s := range order.Sections(doc) {
					st := progress.Section(s)
					fmt.Printf("%s  %s  (%d/%d, %d%%)\n", s.ID, s.Title, st.Done, st.Total, st.Pct)
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"", "ID", "Check", "Note", "Photos", "Updated"})
					for _, it := range order.Items(s) {
						tw.AppendRow(table.Row{it.Status.Glyph(), it.ID, it.Text, it.Note, len(it.Photos), it.Timestamp})
					}
					tw.Render()
					fmt.Println()
				}
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show completion per section and overall",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Document()
				if err != nil {
					return err
				}
				global := progress.Global(doc)
				type sectionStatus struct {
					ID     string          `json:"id"`
					Title  string          `json:"title"`
					Stats  progress.Stats  `json:"stats"`
					Badges progress.Counts `json:"badges"`
				}
				var sections []sectionStatus
				for _, s := range order.Sections(doc) {
					sections = append(sections, sectionStatus{ID: s.ID, Title: s.Title, Stats: progress.Section(s), Badges: progress.Badges(s)})
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"state":    e.Session.State,
						"file":     e.Session.FileName,
						"global":   global,
						"sections": sections,
					})
				}
				fmt.Printf("Session: %s", e.Session.State)
				if e.Session.FileName != "" {
					fmt.Printf(" (%s)", e.Session.FileName)
				}
				fmt.Println()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Section", "Done", "%", "todo", "ok", "ko", "na"})
				for _, s := range sections {
					tw.AppendRow(table.Row{s.Title, fmt.Sprintf("%d/%d", s.Stats.Done, s.Stats.Total), s.Stats.Pct,
						s.Badges.Pending, s.Badges.Pass, s.Badges.Fail, s.Badges.NotApplicable})
				}
				tw.AppendFooter(table.Row{"Overall", fmt.Sprintf("%d/%d", global.Done, global.Total), global.Pct,
					global.Pending, global.Pass, global.Fail, global.NotApplicable})
				tw.Render()
				return nil
			})
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the export checks without exporting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Document()
				if err != nil {
					return err
				}
				err = export.Check(doc)
				if viper.GetBool("json") {
					out := map[string]any{"ok": err == nil, "violations": export.Validate(doc)}
					var ge *export.GateError
					if errors.As(err, &ge) {
						out["missing_fields"] = ge.MissingFields
					}
					if perr := printJSON(out); perr != nil {
						return perr
					}
					return err
				}
				if err == nil {
					fmt.Println("Ready to export")
					return nil
				}
				printGateError(err)
				return err
			})
		},
	}
}

// --- output ---

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the checklist JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, name, err := e.Export()
				if err != nil {
					printGateError(err)
					return err
				}
				path, err := writeOutput(out, name, data)
				if err != nil {
					return err
				}
				return printResult(map[string]any{"file": path, "bytes": len(data)}, "Exported "+path)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", ".", "output directory")
	return cmd
}

func reportCmd() *cobra.Command {
	var out string
	var blank bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the PDF report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, name, err := e.Report(blank)
				if err != nil {
					return err
				}
				path, err := writeOutput(out, name, data)
				if err != nil {
					return err
				}
				return printResult(map[string]any{"file": path, "bytes": len(data)}, "Wrote "+path)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", ".", "output directory")
	cmd.Flags().BoolVar(&blank, "blank", false, "render the empty form")
	return cmd
}

// --- meta ---

func metaCmd() *cobra.Command {
	meta := &cobra.Command{Use: "meta", Short: "Edit document meta"}
	meta.AddCommand(metaSetCmd())
	return meta
}

func metaSetCmd() *cobra.Command {
	var field, value string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set one meta field",
		Long:  "Fields: centraleNome|site, anno|year, preposto|responsible, operatori|operators, dataInizio|start, dataFine|end, oreEsercizio|hours, noteGenerali|notes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetMeta(field, value); err != nil {
					return err
				}
				doc, _ := e.Document()
				return printResult(doc.Meta, "Meta updated")
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "meta field")
	cmd.Flags().StringVar(&value, "value", "", "new value")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

// --- sections ---

func sectionCmd() *cobra.Command {
	sec := &cobra.Command{Use: "section", Short: "Manage sections"}
	sec.AddCommand(sectionAddCmd())
	sec.AddCommand(sectionRenameCmd())
	sec.AddCommand(sectionDeleteCmd())
	sec.AddCommand(sectionMoveCmd())
	return sec
}

func sectionAddCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a section",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AddSection(title)
				if err != nil {
					return err
				}
				return printResult(s, fmt.Sprintf("Added section %s", s.ID))
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "section title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func sectionRenameCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "rename <section-id>",
		Short: "Rename a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ok, err := e.RenameSection(args[0], title)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("section %s: %w", args[0], errNotFound)
				}
				fmt.Printf("Renamed section %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func sectionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <section-id>",
		Short: "Delete a section and all of its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Document()
				if err != nil {
					return err
				}
				s := doc.FindSection(args[0])
				if s == nil {
					return fmt.Errorf("section %s: %w", args[0], errNotFound)
				}
				prompt := fmt.Sprintf("Delete section %q and its %d items? Type \"delete\" to confirm.", s.Title, len(s.Items))
				if !confirm(prompt, "delete") {
					return errAborted
				}
				if _, err := e.DeleteSection(args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted section %s\n", args[0])
				return nil
			})
		},
	}
}

func sectionMoveCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "move <section-id>",
		Short: "Move a section up or down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.ParseDirection(dir)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Document()
				if err != nil {
					return err
				}
				if doc.FindSection(args[0]) == nil {
					return fmt.Errorf("section %s: %w", args[0], errNotFound)
				}
				moved, err := e.MoveSection(args[0], d)
				if err != nil {
					return err
				}
				if !moved {
					fmt.Printf("Section %s is already at the %s edge\n", args[0], edge(d))
					return nil
				}
				fmt.Printf("Moved section %s %s\n", args[0], d)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "direction (up, down)")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

// --- items ---

func itemCmd() *cobra.Command {
	it := &cobra.Command{Use: "item", Short: "Manage check items"}
	it.AddCommand(itemAddCmd())
	it.AddCommand(itemRenameCmd())
	it.AddCommand(itemDeleteCmd())
	it.AddCommand(itemMoveCmd())
	it.AddCommand(itemNoteCmd())
	it.AddCommand(itemSetCmd())
	it.AddCommand(itemPhotoCmd())
	return it
}

func itemAddCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "add <section-id>",
		Short: "Append an item to a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, ok, err := e.AddItem(args[0], text)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("section %s: %w", args[0], errNotFound)
				}
				return printResult(it, fmt.Sprintf("Added item %s", it.ID))
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "item text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func itemRenameCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "rename <section-id> <item-id>",
		Short: "Change an item's text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ok, err := e.RenameItem(args[0], args[1], text)
				if err != nil {
					return err
				}
				if !ok {
					return itemNotFound(args[0], args[1])
				}
				fmt.Printf("Renamed item %s\n", args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "new text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func itemDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <section-id> <item-id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Document()
				if err != nil {
					return err
				}
				it := doc.FindItem(args[0], args[1])
				if it == nil {
					return itemNotFound(args[0], args[1])
				}
				if !confirm(fmt.Sprintf("Delete item %q?", it.Text), "") {
					return errAborted
				}
				if _, err := e.DeleteItem(args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Deleted item %s\n", args[1])
				return nil
			})
		},
	}
}

func itemMoveCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "move <section-id> <item-id>",
		Short: "Move an item up or down within its section",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.ParseDirection(dir)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Document()
				if err != nil {
					return err
				}
				if doc.FindItem(args[0], args[1]) == nil {
					return itemNotFound(args[0], args[1])
				}
				moved, err := e.MoveItem(args[0], args[1], d)
				if err != nil {
					return err
				}
				if !moved {
					fmt.Printf("Item %s is already at the %s edge\n", args[1], edge(d))
					return nil
				}
				fmt.Printf("Moved item %s %s\n", args[1], d)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "direction (up, down)")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func itemNoteCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "note <section-id> <item-id>",
		Short: "Set an item's note (empty clears it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ok, err := e.SetItemNote(args[0], args[1], note)
				if err != nil {
					return err
				}
				if !ok {
					return itemNotFound(args[0], args[1])
				}
				fmt.Printf("Note saved on %s\n", args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note text")
	return cmd
}

func itemSetCmd() *cobra.Command {
	var status, note string
	cmd := &cobra.Command{
		Use:   "set <section-id> <item-id>",
		Short: "Set an item's status (todo, ok, ko, na)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseStatus(status)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if cmd.Flags().Changed("note") {
					ok, err := e.SetItemNote(args[0], args[1], note)
					if err != nil {
						return err
					}
					if !ok {
						return itemNotFound(args[0], args[1])
					}
				}
				tr, err := e.SetItemStatus(args[0], args[1], st)
				if err != nil {
					return err
				}
				if !tr.Applied {
					return itemNotFound(args[0], args[1])
				}
				msg := fmt.Sprintf("%s: %s -> %s", args[1], tr.From.Label(), tr.To.Label())
				if tr.NoteRequired {
					msg += "\nwarning: a failed item needs a note before export (ckl item note)"
				}
				return printResult(tr, msg)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status (todo, ok, ko, na)")
	cmd.Flags().StringVar(&note, "note", "", "note to save along with the status")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func itemPhotoCmd() *cobra.Command {
	photo := &cobra.Command{Use: "photo", Short: "Manage item photos"}
	photo.AddCommand(itemPhotoAddCmd())
	photo.AddCommand(itemPhotoRmCmd())
	return photo
}

func itemPhotoAddCmd() *cobra.Command {
	var at int
	cmd := &cobra.Command{
		Use:   "add <section-id> <item-id> <file>",
		Short: "Attach a photo (replaces the one at --at when given)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			att, err := readAttachment(args[2])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Document()
				if err != nil {
					return err
				}
				it := doc.FindItem(args[0], args[1])
				if it == nil {
					return itemNotFound(args[0], args[1])
				}
				ok, err := e.AddAttachment(args[0], args[1], att, at)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("item %s already has %d photos", args[1], len(it.Photos))
				}
				fmt.Printf("Attached %s to %s\n", att.Name, args[1])
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&at, "at", -1, "slot to replace (0-based); default appends")
	return cmd
}

func itemPhotoRmCmd() *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "rm <section-id> <item-id>",
		Short: "Remove a photo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Document()
				if err != nil {
					return err
				}
				if doc.FindItem(args[0], args[1]) == nil {
					return itemNotFound(args[0], args[1])
				}
				ok, err := e.RemoveAttachment(args[0], args[1], index)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("photo %d on item %s: %w", index, args[1], errNotFound)
				}
				fmt.Printf("Removed photo %d from %s\n", index, args[1])
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "photo slot (0-based)")
	return cmd
}

// --- workspace ---

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Event log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if items == nil {
						items = []domain.Event{}
					}
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, strings.TrimSpace(evt.EntityKind + " " + evt.EntityID), evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind (document, section, item)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the workspace config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if defaults {
				fmt.Print(config.GenerateDefault())
				return nil
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if viper.GetBool("json") {
					return printJSON(ws.Config)
				}
				data, err := ws.Config.YAML()
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&defaults, "default", false, "print the built-in default config")
	return cmd
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a checkline.yml in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Repo.UpsertConfig(ctx, cfg); err != nil {
					return err
				}
				fmt.Printf("Imported config from %s\n", file)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "checkline.yml", "config file")
	return cmd
}

func actorCmd() *cobra.Command {
	actor := &cobra.Command{Use: "actor", Short: "Workspace actor"}
	actor.AddCommand(&cobra.Command{
		Use:   "use <actor-id>",
		Short: "Record the default actor id in the workspace .env",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := strings.TrimSpace(args[0])
			if actorID == "" {
				return fmt.Errorf("actor id is required")
			}
			path := filepath.Join(viper.GetString("workspace"), ".env")
			if err := setEnvValue(path, "CHECKLINE_ACTOR_ID", actorID); err != nil {
				return err
			}
			fmt.Printf("Set CHECKLINE_ACTOR_ID=%s in %s\n", actorID, path)
			return nil
		},
	})
	return actor
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ws, err := app.Open(ctx, viper.GetString("workspace"), lg)
			if err != nil {
				return err
			}
			defer ws.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("CHECKLINE_JWT_SECRET"), DefaultActorID: viper.GetString("actor-id")}
			if authCfg.JWTSecret == "" {
				lg.Warn("CHECKLINE_JWT_SECRET not set; API accepts unauthenticated requests", zap.String("actor_id", authCfg.DefaultActorID))
			}
			handler, err := server.New(ctx, server.Config{Workspace: ws, BasePath: basePath, Auth: authCfg, Log: lg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Checkline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ws, err := app.Open(ctx, viper.GetString("workspace"), lg)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

// withSession loads the working draft, runs fn and persists whatever fn changed.
func withSession(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		s, err := ws.LoadSession(ctx)
		if err != nil {
			return err
		}
		if err := fn(ctx, ws.Engine(s)); err != nil {
			return err
		}
		return ws.Persist(ctx, s, viper.GetString("actor-id"))
	})
}

// confirm asks on stdin unless --force is set. With a word, the answer must match it exactly.
func confirm(prompt, word string) bool {
	if viper.GetBool("force") {
		return true
	}
	if word == "" {
		fmt.Print(prompt + " [y/N] ")
	} else {
		fmt.Print(prompt + " ")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Println()
		return false
	}
	answer := strings.TrimSpace(line)
	if word != "" {
		return answer == word
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func readAttachment(path string) (domain.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Attachment{}, err
	}
	if len(data) == 0 {
		return domain.Attachment{}, engine.ErrEmptyPayload
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return domain.Attachment{}, fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return domain.Attachment{
		DataURL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		Name:    filepath.Base(path),
	}, nil
}

func writeOutput(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func printGateError(err error) {
	var ge *export.GateError
	if !errors.As(err, &ge) || viper.GetBool("json") {
		return
	}
	for _, f := range ge.MissingFields {
		fmt.Printf("missing meta field: %s\n", f)
	}
	if len(ge.Violations) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Section", "Item ID", "Check"})
	for _, v := range ge.Violations {
		tw.AppendRow(table.Row{v.SectionTitle, v.ItemID, v.ItemText})
	}
	tw.SetTitle("Failed items without a note")
	tw.Render()
}

func printSummary(doc *domain.Document) error {
	if viper.GetBool("json") {
		return printJSON(doc)
	}
	items := 0
	for _, s := range doc.Sections {
		items += len(s.Items)
	}
	fmt.Printf("Document ready: %d sections, %d items\n", len(doc.Sections), items)
	return nil
}

// printResult prints v as JSON with --json, msg otherwise.
func printResult(v any, msg string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(msg)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func itemNotFound(sectionID, itemID string) error {
	return fmt.Errorf("item %s in section %s: %w", itemID, sectionID, errNotFound)
}

func edge(d domain.Direction) string {
	if d == domain.Up {
		return "top"
	}
	return "bottom"
}

// setEnvValue rewrites one key of a dotenv file, keeping the others.
func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		env = map[string]string{}
	}
	env[key] = value
	return godotenv.Write(env, path)
}
