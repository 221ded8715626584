package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/aiact/compliance/internal/models"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotifyIncidentReported   NotificationType = "incident_reported"
	NotifyReadinessDigest    NotificationType = "readiness_digest"
	NotifyOverdueMitigations NotificationType = "overdue_mitigations"
)

// Channel defines notification channels
type Channel string

const (
	ChannelSlack Channel = "slack"
	ChannelEmail Channel = "email"
)

// Notification represents a notification to be sent
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Severity  models.Severity
	Data      map[string]interface{}
	Lines     []string
	Timestamp time.Time
}

// Config holds notification configuration. MinSeverity applies to incident
// alerts; scheduled digests are always delivered.
type Config struct {
	MinSeverity models.Severity `json:"min_severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	Slack       SlackConfig     `json:"slack"`
	Email       EmailConfig     `json:"email"`
}

type SlackConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url" validate:"required_if=Enabled true,omitempty,url"`
	Channel    string `json:"channel,omitempty"`
	Username   string `json:"username,omitempty"`
	IconEmoji  string `json:"icon_emoji,omitempty"`
}

type EmailConfig struct {
	Enabled  bool     `json:"enabled"`
	SMTPHost string   `json:"smtp_host" validate:"required_if=Enabled true"`
	SMTPPort int      `json:"smtp_port" validate:"omitempty,min=1,max=65535"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	From     string   `json:"from" validate:"required_if=Enabled true,omitempty,email"`
	To       []string `json:"to" validate:"required_if=Enabled true,dive,email"`
}

// Redacted returns a copy safe to hand to API clients.
func (c Config) Redacted() Config {
	if c.Email.Password != "" {
		c.Email.Password = "********"
	}
	if c.Slack.WebhookURL != "" {
		c.Slack.WebhookURL = redactURL(c.Slack.WebhookURL)
	}
	return c
}

func redactURL(u string) string {
	if i := strings.LastIndex(u, "/"); i > 0 && i < len(u)-1 {
		return u[:i+1] + "********"
	}
	return u
}

type mailSender func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles notifications
type Service struct {
	mu       sync.RWMutex
	config   Config
	logger   *slog.Logger
	client   *http.Client
	sendMail mailSender
}

// NewService creates a new notification service
func NewService(config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MinSeverity == "" {
		config.MinSeverity = models.SeverityHigh
	}
	if config.Slack.Username == "" {
		config.Slack.Username = "AI Act Compliance"
	}

	return &Service{
		config:   config,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		sendMail: smtp.SendMail,
	}
}

func (s *Service) Settings() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// UpdateSettings replaces the runtime configuration. A redacted secret
// keeps the current value.
func (s *Service) UpdateSettings(config Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if config.Email.Password == "********" {
		config.Email.Password = s.config.Email.Password
	}
	if strings.HasSuffix(config.Slack.WebhookURL, "/********") {
		config.Slack.WebhookURL = s.config.Slack.WebhookURL
	}
	if config.Slack.Username == "" {
		config.Slack.Username = s.config.Slack.Username
	}
	s.config = config
}

// Send sends a notification to all enabled channels
func (s *Service) Send(ctx context.Context, notif *Notification) error {
	cfg := s.Settings()
	var errs []error

	if cfg.Slack.Enabled {
		if err := s.sendSlack(ctx, cfg.Slack, notif); err != nil {
			errs = append(errs, fmt.Errorf("slack: %w", err))
		}
	}

	if cfg.Email.Enabled {
		if err := s.sendEmail(cfg.Email, notif); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	return errors.Join(errs...)
}

// shouldNotify reports whether an incident of severity passes the filter.
func (s *Service) shouldNotify(severity models.Severity) bool {
	return severity.Rank() >= s.Settings().MinSeverity.Rank()
}

// SlackMessage represents a Slack message payload
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fallback  string       `json:"fallback,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *Service) sendSlack(ctx context.Context, cfg SlackConfig, notif *Notification) error {
	fields := make([]SlackField, 0, len(notif.Data))
	for _, key := range sortedKeys(notif.Data) {
		fields = append(fields, SlackField{
			Title: fieldTitle(key),
			Value: fmt.Sprint(notif.Data[key]),
			Short: true,
		})
	}

	text := notif.Message
	if len(notif.Lines) > 0 {
		text += "\n• " + strings.Join(notif.Lines, "\n• ")
	}

	msg := SlackMessage{
		Channel:   cfg.Channel,
		Username:  cfg.Username,
		IconEmoji: cfg.IconEmoji,
		Attachments: []SlackAttachment{
			{
				Color:     severityColor(notif.Severity),
				Title:     notif.Title,
				Text:      text,
				Fallback:  fmt.Sprintf("%s: %s", notif.Title, notif.Message),
				Fields:    fields,
				Footer:    "EU AI Act Compliance",
				Timestamp: notif.Timestamp.Unix(),
			},
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	s.logger.Info("slack notification sent",
		"type", notif.Type,
		"title", notif.Title)

	return nil
}

func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#D32F2F"
	case models.SeverityHigh:
		return "#F57C00"
	case models.SeverityMedium:
		return "#FBC02D"
	case models.SeverityLow:
		return "#388E3C"
	default:
		return "#1976D2"
	}
}

func (s *Service) sendEmail(cfg EmailConfig, notif *Notification) error {
	subject := fmt.Sprintf("[EU AI Act] %s", notif.Title)
	body, err := formatEmailBody(notif)
	if err != nil {
		return err
	}

	msg := buildEmailMessage(cfg, subject, body)

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)

	if err := s.sendMail(addr, auth, cfg.From, cfg.To, []byte(msg)); err != nil {
		return err
	}

	s.logger.Info("email notification sent",
		"type", notif.Type,
		"title", notif.Title,
		"recipients", len(cfg.To))

	return nil
}

func buildEmailMessage(cfg EmailConfig, subject, body string) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(cfg.To, ","))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 640px; margin: 0 auto; background: white; border-radius: 8px; }
        .header { padding: 20px; background: {{.Color}}; color: white; border-radius: 8px 8px 0 0; }
        .content { padding: 20px; }
        .data-table { width: 100%; border-collapse: collapse; margin-top: 15px; }
        .data-table td { padding: 8px; border-bottom: 1px solid #eee; }
        .data-table td:first-child { font-weight: bold; width: 35%; }
        .footer { padding: 15px 20px; background: #f9f9f9; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h2 style="margin:0;">{{.Title}}</h2></div>
        <div class="content">
            <p>{{.Message}}</p>
            {{if .Severity}}<p>Severity: <strong>{{.Severity}}</strong></p>{{end}}
            {{if .Lines}}<ul>{{range .Lines}}<li>{{.}}</li>{{end}}</ul>{{end}}
            {{if .Data}}
            <table class="data-table">
                {{range .Data}}<tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>{{end}}
            </table>
            {{end}}
        </div>
        <div class="footer">
            <p>Automated notification from the EU AI Act compliance service.</p>
            <p>Generated at: {{.Timestamp}}</p>
        </div>
    </div>
</body>
</html>
`))

type emailRow struct {
	Key   string
	Value string
}

func formatEmailBody(notif *Notification) (string, error) {
	rows := make([]emailRow, 0, len(notif.Data))
	for _, key := range sortedKeys(notif.Data) {
		rows = append(rows, emailRow{Key: fieldTitle(key), Value: fmt.Sprint(notif.Data[key])})
	}

	data := map[string]interface{}{
		"Title":     notif.Title,
		"Message":   notif.Message,
		"Severity":  string(notif.Severity),
		"Color":     severityColor(notif.Severity),
		"Lines":     notif.Lines,
		"Data":      rows,
		"Timestamp": notif.Timestamp.Format(time.RFC1123),
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
