package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vereinsheim/portal/internal/models"
)

// Data is what the templates see.
type Data struct {
	Request      *models.EventRequest
	SpecialEvent *models.SpecialEvent
	Entry        *models.Entry
	Reason       string
	Notes        string
	// Path is joined to the frontend URL to build Link.
	Path     string
	Link     string
	SiteName string
}

type Options struct {
	AdminEmails []string
	FrontendURL string
	SiteName    string
	Timeout     time.Duration
}

// Notifier renders workflow emails and delivers them in the background.
type Notifier struct {
	renderer    *Renderer
	mailer      Mailer
	admins      []string
	frontendURL string
	siteName    string
	timeout     time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewNotifier(mailer Mailer, opts Options, logger *slog.Logger) (*Notifier, error) {
	if mailer == nil {
		return nil, errors.New("notifier needs a mailer")
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.SiteName == "" {
		opts.SiteName = "Vereinsheim"
	}
	return &Notifier{
		renderer:    renderer,
		mailer:      mailer,
		admins:      opts.AdminEmails,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		siteName:    opts.SiteName,
		timeout:     opts.Timeout,
		logger:      logger,
	}, nil
}

// Dispatch sends in a goroutine with its own deadline. The caller's request
// may already be finished by the time the mail goes out; failures are only logged.
// An empty recipient list means the admin recipients.
func (n *Notifier) Dispatch(template string, to []string, data Data) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.Send(ctx, template, to, data); err != nil {
			n.logger.Warn("notification failed",
				"template", template,
				"error", err,
			)
		}
	}()
}

// Send renders and delivers synchronously.
func (n *Notifier) Send(ctx context.Context, template string, to []string, data Data) error {
	recipients := cleanRecipients(to)
	if len(recipients) == 0 {
		recipients = cleanRecipients(n.admins)
	}
	if len(recipients) == 0 {
		n.logger.Debug("notification skipped, no recipients", "template", template)
		return nil
	}

	if data.SiteName == "" {
		data.SiteName = n.siteName
	}
	if data.Link == "" {
		data.Link = n.frontendURL + data.Path
	}

	subject, html, text, err := n.renderer.Render(template, data)
	if err != nil {
		return err
	}
	if err := n.mailer.Send(ctx, Message{To: recipients, Subject: subject, HTML: html, Text: text}); err != nil {
		return err
	}
	n.logger.Info("notification sent", "template", template, "recipients", len(recipients))
	return nil
}

// Wait blocks until every dispatched notification has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func cleanRecipients(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, addr := range in {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}
