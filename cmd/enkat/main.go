package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/enkat-io/enkat/internal/config"
	"github.com/enkat-io/enkat/internal/email"
	"github.com/enkat-io/enkat/internal/inbox"
	"github.com/enkat-io/enkat/internal/ingest"
	"github.com/enkat-io/enkat/internal/logging"
	"github.com/enkat-io/enkat/internal/store"
	"github.com/enkat-io/enkat/internal/survey"
	"github.com/enkat-io/enkat/internal/template"
	"github.com/enkat-io/enkat/internal/web"
)

var cfgFile string

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig falls back to defaults when no config file exists at the default path
func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	if cfgFile == "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// app holds what every command needs; close releases it
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &app{cfg: cfg, logger: logger, store: st}, nil
}

func (a *app) close() {
	a.store.Close()
	a.logger.Sync()
}

func (a *app) service() *ingest.Service {
	return ingest.NewService(ingest.FromStore(a.store), a.cfg.Store.Timeout(), a.logger.Named("ingest"))
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "enkat",
		Short: "Enkat - Survey invitations answered by email",
		Long: `Enkat sends survey invitations by email and records the answers
people write in their replies.

Replies are routed back by their reply+<survey-id>@ address or the
survey id in the subject, parsed line by line ("Q1: 8", "Q2: N/A",
"Kommentar: ..."), and stored against the survey's questions.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.enkat/config.yaml)")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(responsesCmd())
	rootCmd.AddCommand(closeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <catalog.yaml|dir>",
		Short: "Import survey templates and surveys",
		Long: `Load templates, questions and surveys from a YAML catalog into the database.

Surveys without an id get one; a single catalog file is rewritten with the
new ids (the previous version is kept as .bak). Re-importing updates titles,
recipients and questions but never resets a survey's status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0])
		},
	}
}

func runImport(ctx context.Context, path string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog *survey.Catalog
	if info.IsDir() {
		catalog, err = survey.LoadFromDir(path)
	} else {
		catalog, err = survey.LoadFromFile(path)
	}
	if err != nil {
		return err
	}
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	if !info.IsDir() {
		if n := catalog.AssignIDs(); n > 0 {
			if err := catalog.SaveWithBackup(path); err != nil {
				return fmt.Errorf("failed to save assigned ids: %w", err)
			}
			fmt.Printf("Assigned ids to %d surveys (written back to %s)\n", n, path)
		}
	}

	stats, err := a.store.ImportCatalog(ctx, catalog)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d templates, %d questions, %d surveys\n", stats.Templates, stats.Questions, stats.Surveys)
	return nil
}

func sendCmd() *cobra.Command {
	var dryRun bool
	var drafts bool

	cmd := &cobra.Command{
		Use:   "send [survey-id...]",
		Short: "Send survey invitations",
		Long: `Render and send the invitation for each survey. The Reply-To address is
reply+<survey-id>@<reply_domain> so answers find their way back. Draft
surveys are marked sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !drafts {
				return fmt.Errorf("give one or more survey ids, or --drafts")
			}
			return runSend(cmd.Context(), args, drafts, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview emails without sending")
	cmd.Flags().BoolVar(&drafts, "drafts", false, "Send every survey that is still a draft")

	return cmd
}

func runSend(ctx context.Context, ids []string, drafts, dryRun bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if drafts {
		list, err := a.store.ListSurveys(ctx, survey.StatusDraft)
		if err != nil {
			return err
		}
		for _, sv := range list {
			ids = append(ids, sv.ID)
		}
	}
	if len(ids) == 0 {
		fmt.Println("No surveys to send.")
		return nil
	}

	tmplEngine, err := template.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}

	var sender email.Sender
	if dryRun {
		fmt.Println("🔍 DRY RUN MODE - No emails will be sent")
		fmt.Println()
	} else {
		sender, err = email.NewSender(a.cfg.Email)
		if err != nil {
			return fmt.Errorf("failed to initialize email sender: %w", err)
		}
	}

	sent, failed := 0, 0
	for i, id := range ids {
		sv, questions, err := a.store.FindSurveyWithQuestions(ctx, id)
		if err != nil {
			fmt.Printf("[%d/%d] %s\n  ❌ %v\n", i+1, len(ids), id, err)
			failed++
			continue
		}
		fmt.Printf("[%d/%d] %s (%s)\n", i+1, len(ids), sv.Title, sv.RecipientEmail)

		if sv.RecipientEmail == "" {
			fmt.Println("  ❌ No recipient_email")
			failed++
			continue
		}

		rendered, err := tmplEngine.Render(a.cfg.Email.Language, template.InvitationData{
			SurveyID:     sv.ID,
			Title:        sv.Title,
			Organization: sv.Organization,
			Questions:    questions,
		})
		if err != nil {
			fmt.Printf("  ❌ Failed to render template: %v\n", err)
			failed++
			continue
		}

		msg := email.Message{
			To:      sv.RecipientEmail,
			From:    a.cfg.Email.From,
			ReplyTo: inbox.ReplyAddress(sv.ID, a.cfg.Email.ReplyDomain),
			Subject: rendered.Subject,
			Body:    rendered.Body,
		}

		if dryRun {
			fmt.Printf("  📧 Would send: %s\n", msg.Subject)
			fmt.Printf("  ↩️  Reply-To: %s\n", msg.ReplyTo)
			sent++
			continue
		}

		result := sender.Send(ctx, msg)
		if !result.Success {
			fmt.Printf("  ❌ Failed: %v\n", result.Error)
			a.logger.Warn("Invitation failed", zap.String("survey_id", sv.ID), zap.Error(result.Error))
			failed++
			continue
		}

		if err := a.store.MarkSent(ctx, sv.ID, time.Now()); err != nil {
			fmt.Printf("  ⚠️  Sent, but failed to record: %v\n", err)
		}
		a.logger.Info("Invitation sent", zap.String("survey_id", sv.ID), zap.String("message_id", result.MessageID))
		fmt.Println("  ✅ Sent successfully")
		sent++
	}

	fmt.Println()
	if dryRun {
		fmt.Printf("📊 Dry run complete: %d invitations would be sent\n", sent)
	} else {
		fmt.Printf("📊 Complete: %d sent, %d failed\n", sent, failed)
	}
	return nil
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [file.eml|-]",
		Short: "Ingest one raw reply message",
		Long:  "Run a raw RFC 822 reply (from a file, or stdin when omitted or -) through the reply pipeline.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runIngest(cmd.Context(), path)
		},
	}
}

func runIngest(ctx context.Context, path string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open message: %w", err)
		}
		defer f.Close()
		r = f
	}

	msg, err := inbox.ParseMessage(r)
	if err != nil {
		return err
	}

	result, err := a.service().Ingest(ctx, ingest.EnvelopeFromEmail(*msg))
	if err != nil {
		return err
	}

	switch {
	case result.Automated != inbox.NotAutomated:
		fmt.Printf("Ignored automated message (%s) for survey %s\n", result.Automated, result.SurveyID)
	case result.RepliesDisabled:
		fmt.Printf("Survey %s does not accept replies; nothing stored\n", result.SurveyID)
	default:
		fmt.Printf("Survey %s: %d responses stored", result.SurveyID, result.ResponsesProcessed)
		if result.FreeTextSaved {
			fmt.Print(", free text saved")
		}
		if result.Skipped > 0 {
			fmt.Printf(", %d skipped", result.Skipped)
		}
		fmt.Printf(" (status: %s)\n", result.Status)
	}
	return nil
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inbound email webhook",
		Long: `Serve POST /webhooks/email for inbound-mail providers, plus
GET /api/surveys/{id}. When inbox polling is enabled in the config the
IMAP poller runs alongside the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides server.port)")

	return cmd
}

func runServe(port int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if port != 0 {
		a.cfg.Server.Port = port
	}
	if a.cfg.Server.WebhookSecret == "" {
		a.logger.Warn("No webhook secret configured; anyone who can reach the server can post replies")
	}

	if a.cfg.Inbox.Enabled {
		if err := a.cfg.ValidateInbox(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := a.service()
	server := web.NewServer(a.cfg.Server, svc, a.store, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })

	if a.cfg.Inbox.Enabled {
		monitor := inbox.NewMonitor(a.cfg.Inbox, a.logger.Named("imap"))
		defer monitor.Disconnect()

		poller := newPoller(a, monitor, svc)
		g.Go(func() error { return poller.Run(ctx) })
	}

	fmt.Printf("Enkat listening on %s\n", a.cfg.Server.ListenAddr())
	fmt.Println("Press Ctrl+C to stop")
	return g.Wait()
}

func newPoller(a *app, mailbox inbox.Mailbox, svc *ingest.Service) *inbox.Poller {
	archive := ""
	if a.cfg.Inbox.AutoArchive {
		archive = a.cfg.Inbox.ArchiveFolder
	}
	return inbox.NewPoller(mailbox, svc.HandleEmail, a.cfg.Inbox.PollInterval(), archive, a.logger.Named("poller"))
}

func monitorCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll the inbox for survey replies",
		Long: `Connect to the reply mailbox via IMAP and ingest every unseen message.

Handled replies are marked seen (and archived when auto_archive is on).
Replies that failed to store stay unseen and are retried on the next poll.

Requires inbox configuration in config.yaml with IMAP settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep polling every inbox.poll_interval_sec")

	return cmd
}

func runMonitor(watch bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.ValidateInbox(); err != nil {
		fmt.Println("📧 Inbox polling is not configured.")
		fmt.Println()
		fmt.Println("To enable it, add the following to your config.yaml:")
		fmt.Println()
		fmt.Println("inbox:")
		fmt.Println("  enabled: true")
		fmt.Println("  provider: gmail")
		fmt.Println("  email: enkat@your-domain.se")
		fmt.Println("  password: your-app-password  # Use an App Password, not your main password")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := inbox.NewMonitor(a.cfg.Inbox, a.logger.Named("imap"))
	if err := monitor.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to inbox: %w", err)
	}
	defer monitor.Disconnect()

	poller := newPoller(a, monitor, a.service())
	if watch {
		fmt.Printf("📬 Watching %s every %s...\n", a.cfg.Inbox.Folder, a.cfg.Inbox.PollInterval())
		return poller.Run(ctx)
	}

	n, err := poller.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll inbox: %w", err)
	}
	fmt.Printf("📬 Handled %d replies\n", n)
	return nil
}

func statusCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "status [survey-id]",
		Short: "Show survey status and coverage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runSurveyStatus(cmd.Context(), args[0])
			}
			return runListSurveys(cmd.Context(), survey.Status(status))
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only list surveys with this status (draft, sent, partial, completed, closed)")

	return cmd
}

func runListSurveys(ctx context.Context, status survey.Status) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	surveys, err := a.store.ListSurveys(ctx, status)
	if err != nil {
		return err
	}
	if len(surveys) == 0 {
		fmt.Println("No surveys.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tANSWERED\tCOMPLETED")
	for _, sv := range surveys {
		answered, err := a.store.CountResponses(ctx, sv.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			sv.ID, sv.Title, sv.Status, answered, sv.QuestionCount, formatTime(sv.CompletedAt))
	}
	return w.Flush()
}

func runSurveyStatus(ctx context.Context, id string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	sv, err := a.store.GetSurvey(ctx, id)
	if err != nil {
		return err
	}
	answered, err := a.store.CountResponses(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("📊 %s\n", sv.Title)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  ID:           %s\n", sv.ID)
	fmt.Printf("  Organization: %s\n", sv.Organization)
	fmt.Printf("  Recipient:    %s\n", sv.RecipientEmail)
	fmt.Printf("  Status:       %s\n", sv.Status)
	fmt.Printf("  Answered:     %d of %d (%.0f%%)\n", answered, sv.QuestionCount, 100*ingest.Coverage(answered, sv.QuestionCount))
	fmt.Printf("  Sent:         %s\n", formatTime(sv.SentAt))
	fmt.Printf("  Completed:    %s\n", formatTime(sv.CompletedAt))
	if !sv.AcceptsReplies {
		fmt.Println("  Replies are not accepted for this survey")
	}
	return nil
}

func responsesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "responses <survey-id>",
		Short: "List the stored responses of a survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResponses(cmd.Context(), args[0])
		},
	}
}

func runResponses(ctx context.Context, id string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.store.GetSurvey(ctx, id); err != nil {
		return err
	}
	responses, err := a.store.ListResponses(ctx, id)
	if err != nil {
		return err
	}
	if len(responses) == 0 {
		fmt.Println("No responses yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tANSWER\tFROM\tRESPONDED")
	for _, r := range responses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.QuestionCode, truncateString(r.Value.String(), 60), r.RespondentEmail, r.RespondedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func closeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <survey-id>",
		Short: "Close a survey",
		Long:  "Mark a survey closed. Later replies are still stored but never change its status.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.SetStatus(cmd.Context(), args[0], survey.StatusClosed); err != nil {
				return err
			}
			fmt.Printf("Survey %s closed\n", args[0])
			return nil
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
