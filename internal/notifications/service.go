package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/config"
	"github.com/trendagents/trend-pipeline/internal/count"
	"github.com/trendagents/trend-pipeline/internal/models"
	"gopkg.in/gomail.v2"
)

const digestTrendLimit = 10

var platformNames = map[string]string{
	models.PlatformTikTok:   "TikTok",
	models.PlatformX:        "X",
	models.PlatformFacebook: "Facebook",
}

// Service sends trend digests via Teams and email
type Service struct {
	config *config.Config
	client *resty.Client
	send   func(m *gomail.Message) error
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
	s.send = s.dialAndSend
	return s
}

// SendDigest sends a digest via every configured channel. A failing channel
// does not stop the others.
func (s *Service) SendDigest(digest *models.Digest) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(digest); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Sent %s digest to Teams", digest.Platform)
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(digest); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Sent %s digest via email", digest.Platform)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(digest *models.Digest) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(buildTeamsMessage(digest)).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func buildTeamsMessage(digest *models.Digest) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   digestTitle(digest),
		Text:    fmt.Sprintf("Generated %s", digest.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")),
	}

	if digest.Summary != "" {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Summary",
			ActivityText:  digest.Summary,
			Markdown:      true,
		})
	}

	if len(digest.Trends) > 0 {
		var facts []TeamsFact
		for i, trend := range topTrends(digest) {
			name := fmt.Sprintf("%d. %s", i+1, trend.Title)
			if trend.URL != "" {
				name = fmt.Sprintf("%d. [%s](%s)", i+1, trend.Title, trend.URL)
			}
			facts = append(facts, TeamsFact{Name: name, Value: metricLine(trend.Metrics)})
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Top Trends",
			Facts:         facts,
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(digest *models.Digest) error {
	htmlBody, err := buildEmailHTML(digest)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", digestTitle(digest))
	m.SetBody("text/plain", buildEmailText(digest))
	m.AddAlternative("text/html", htmlBody)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (s *Service) dialAndSend(m *gomail.Message) error {
	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	return d.DialAndSend(m)
}

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"metrics": metricLine,
}).Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; white-space: pre-wrap; }
        .trend { border-left: 4px solid #0078d4; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .trend-meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Title}}</h1>
        <p>Generated on {{.Digest.GeneratedAt.UTC.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>
    {{if .Digest.Summary}}
    <div class="summary">{{.Digest.Summary}}</div>
    {{end}}
    {{range .Trends}}
    <div class="trend">
        {{if .URL}}<a href="{{.URL}}" target="_blank">{{.Title}}</a>{{else}}<strong>{{.Title}}</strong>{{end}}
        <div class="trend-meta">{{metrics .Metrics}}</div>
    </div>
    {{end}}
</body>
</html>
`))

func buildEmailHTML(digest *models.Digest) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Title  string
		Digest *models.Digest
		Trends []models.Trend
	}{
		Title:  digestTitle(digest),
		Digest: digest,
		Trends: topTrends(digest),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(digest *models.Digest) string {
	var text strings.Builder

	text.WriteString(digestTitle(digest) + "\n")
	text.WriteString(fmt.Sprintf("Generated: %s\n", digest.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))

	if digest.Summary != "" {
		text.WriteString("\nSUMMARY\n")
		text.WriteString("=======\n")
		text.WriteString(digest.Summary + "\n")
	}

	if trends := topTrends(digest); len(trends) > 0 {
		text.WriteString("\nTOP TRENDS\n")
		text.WriteString("==========\n")
		for i, trend := range trends {
			text.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, trend.Title))
			text.WriteString(fmt.Sprintf("   %s\n", metricLine(trend.Metrics)))
			if trend.URL != "" {
				text.WriteString(fmt.Sprintf("   URL: %s\n", trend.URL))
			}
		}
	}

	return text.String()
}

func digestTitle(digest *models.Digest) string {
	name, ok := platformNames[digest.Platform]
	if !ok {
		name = digest.Platform
	}
	return fmt.Sprintf("%s Trends Digest", name)
}

func topTrends(digest *models.Digest) []models.Trend {
	if len(digest.Trends) <= digestTrendLimit {
		return digest.Trends
	}
	return digest.Trends[:digestTrendLimit]
}

func metricLine(m models.TrendMetrics) string {
	var parts []string
	if m.Views != nil {
		parts = append(parts, "Views: "+count.Group(*m.Views))
	}
	if m.Likes != nil {
		parts = append(parts, "Likes: "+count.Group(*m.Likes))
	}
	if m.Shares != nil {
		parts = append(parts, "Shares: "+count.Group(*m.Shares))
	}
	if len(parts) == 0 {
		return "No metrics"
	}
	return strings.Join(parts, " | ")
}
