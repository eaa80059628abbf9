// Package mail renders and sends localized verification code mails.
package mail

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"egaku/internal/middleware"
	"egaku/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/language"
	"gopkg.in/gomail.v2"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yml
var templatesYAML []byte

// Fallback is the locale used when negotiation finds nothing better.
const Fallback = "en"

// supported lists the template locales; the first entry is the matcher default.
var supported = []language.Tag{
	language.English,
	language.SimplifiedChinese,
	language.TraditionalChinese,
	language.Japanese,
}

var localeNames = map[language.Tag]string{
	language.English:            "en",
	language.SimplifiedChinese:  "zh-Hans",
	language.TraditionalChinese: "zh-Hant",
	language.Japanese:           "ja",
}

var matcher = language.NewMatcher(supported)

// Negotiate maps a client language hint (a tag or an Accept-Language list) to a template locale.
func Negotiate(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return Fallback
	}
	tags, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(tags) == 0 {
		return Fallback
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Fallback
	}
	return localeNames[supported[idx]]
}

type localeText struct {
	Subject  string `yaml:"subject"`
	Greeting string `yaml:"greeting"`
	Notice   string `yaml:"notice"`
	Thanks   string `yaml:"thanks"`
}

var page = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html lang="{{.Locale}}">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Egaku</title>
</head>
<body>
    <h3>Egaku</h3>
    <p>{{.Greeting}}</p>
    <h1>{{.Code}}</h1>
    <p>{{.Notice}}</p>
    <p>{{.Thanks}}</p>
</body>
</html>
`))

// Config holds the SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// CodeTTL is rendered into the notice line.
	CodeTTL time.Duration
}

// Message is a rendered mail ready to hand to a transport.
type Message struct {
	Locale  string
	To      string
	Subject string
	HTML    string
	Code    string
}

// Mailer sends verification codes. Without an SMTP host it logs the code instead.
type Mailer struct {
	cfg     Config
	locales map[string]localeText
	send    func(ctx context.Context, m *Message) error
}

// New parses the embedded templates and builds a Mailer for cfg.
func New(cfg Config) (*Mailer, error) {
	locales := map[string]localeText{}
	if err := yaml.Unmarshal(templatesYAML, &locales); err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	if _, ok := locales[Fallback]; !ok {
		return nil, fmt.Errorf("mail templates missing %q", Fallback)
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}

	m := &Mailer{cfg: cfg, locales: locales}
	if strings.TrimSpace(cfg.Host) == "" {
		m.send = logOnly
	} else {
		m.send = m.smtp
	}
	return m, nil
}

// Render builds the mail for code in the locale negotiated from lang.
func (m *Mailer) Render(to, code, lang string) (*Message, error) {
	locale := Negotiate(lang)
	s, ok := m.locales[locale]
	if !ok {
		locale, s = Fallback, m.locales[Fallback]
	}

	notice, err := template.New("notice").Parse(s.Notice)
	if err != nil {
		return nil, fmt.Errorf("parse notice for %s: %w", locale, err)
	}
	var nb bytes.Buffer
	if err := notice.Execute(&nb, struct{ Minutes int }{int(m.cfg.CodeTTL / time.Minute)}); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	err = page.Execute(&body, map[string]any{
		"Locale":   locale,
		"Greeting": s.Greeting,
		"Code":     code,
		// The notice comes from the embedded templates and carries markup.
		"Notice": template.HTML(nb.String()), //nolint:gosec
		"Thanks": s.Thanks,
	})
	if err != nil {
		return nil, err
	}
	return &Message{Locale: locale, To: to, Subject: s.Subject, HTML: body.String(), Code: code}, nil
}

// SendCode renders and delivers a verification code mail.
func (m *Mailer) SendCode(ctx context.Context, to, code, lang string) (err error) {
	msg, err := m.Render(to, code, lang)
	if err != nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, "mail.send_code", attribute.String("mail.locale", msg.Locale))
	defer observability.EndSpan(span, &err)

	if err = m.send(ctx, msg); err != nil {
		observability.MailSent.WithLabelValues(msg.Locale, "error").Inc()
		return fmt.Errorf("send verification mail: %w", err)
	}
	observability.MailSent.WithLabelValues(msg.Locale, "ok").Inc()
	return nil
}

func (m *Mailer) smtp(_ context.Context, msg *Message) error {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.cfg.From)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	return d.DialAndSend(gm)
}

func logOnly(ctx context.Context, msg *Message) error {
	middleware.Logger.InfoContext(ctx, "mail disabled, verification mail not sent",
		slog.String("to", msg.To),
		slog.String("code", msg.Code),
		slog.String("locale", msg.Locale),
		slog.String("subject", msg.Subject),
	)
	return nil
}
