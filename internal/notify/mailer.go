package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// FunctionInvoker is the part of the Supabase functions client the mailer needs.
type FunctionInvoker interface {
	Invoke(functionName string, payload interface{}) (string, error)
}

type MailerConfig struct {
	Provider     string
	FunctionName string
	FromAddress  string
	FromName     string
	SES          SESConfig
}

type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewMailer picks the delivery provider. "function" posts to the backend email
// function, "ses" talks to AWS SES directly, "noop" only logs.
func NewMailer(cfg MailerConfig, functions FunctionInvoker, logger *slog.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "", "function":
		if functions == nil {
			return nil, errors.New("function mailer needs a functions client")
		}
		name := cfg.FunctionName
		if name == "" {
			name = "send-email"
		}
		return &FunctionMailer{functions: functions, name: name}, nil
	case "ses":
		awsCfg := aws.Config{
			Region: cfg.SES.Region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(cfg.SES.AccessKeyID, cfg.SES.SecretAccessKey, ""),
			),
		}
		return &SESMailer{
			client:      ses.NewFromConfig(awsCfg),
			fromAddress: cfg.FromAddress,
			fromName:    cfg.FromName,
		}, nil
	case "noop":
		return &NoopMailer{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// FunctionMailer hands the message to the backend email function, which
// forwards it to the transactional email provider.
type FunctionMailer struct {
	functions FunctionInvoker
	name      string
}

type functionPayload struct {
	AdminEmails []string `json:"adminEmails"`
	Subject     string   `json:"subject"`
	Message     string   `json:"message"`
	HTMLContent string   `json:"htmlContent"`
}

type functionReply struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

func (m *FunctionMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}
	payload := functionPayload{
		AdminEmails: msg.To,
		Subject:     msg.Subject,
		Message:     msg.Text,
		HTMLContent: msg.HTML,
	}

	type reply struct {
		body string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		body, err := m.functions.Invoke(m.name, payload)
		done <- reply{body, err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if r.err != nil {
		return fmt.Errorf("email function %s failed: %w", m.name, r.err)
	}

	var fr functionReply
	if err := json.Unmarshal([]byte(r.body), &fr); err == nil {
		if fr.Error != "" {
			return fmt.Errorf("email function %s: %s", m.name, fr.Error)
		}
		if fr.Success != nil && !*fr.Success {
			return fmt.Errorf("email function %s reported failure", m.name)
		}
	}
	return nil
}

type SESMailer struct {
	client      *ses.Client
	fromAddress string
	fromName    string
}

func (s *SESMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}
	source := s.fromAddress
	if s.fromName != "" {
		source = fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}
	input := &ses.SendEmailInput{
		Source: aws.String(source),
		Destination: &types.Destination{
			ToAddresses: msg.To,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}
	if msg.HTML != "" {
		input.Message.Body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		input.Message.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}
	return nil
}

type NoopMailer struct {
	logger *slog.Logger
}

func (n *NoopMailer) Send(_ context.Context, msg Message) error {
	if n.logger != nil {
		n.logger.Info("email not sent (noop mailer)", "to", strings.Join(msg.To, ","), "subject", msg.Subject)
	}
	return nil
}
