package mail

import (
	"context"
	"fmt"
	"net/url"

	gomail "github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ResetMailer はパスワードリセットのリンクを送る。
type ResetMailer struct {
	cfg         SMTPConfig
	frontendURL string
	send        func(ctx context.Context, msg *gomail.Msg) error
}

func NewResetMailer(cfg SMTPConfig, frontendURL string) *ResetMailer {
	m := &ResetMailer{cfg: cfg, frontendURL: frontendURL}
	m.send = m.dialAndSend
	return m
}

func (m *ResetMailer) SendReset(ctx context.Context, to string, token string) error {
	msg, err := m.buildResetMessage(to, token)
	if err != nil {
		return err
	}
	return m.send(ctx, msg)
}

func (m *ResetMailer) buildResetMessage(to string, token string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject("Your password reset token")

	link := fmt.Sprintf("%s/reset?resetToken=%s", m.frontendURL, url.QueryEscape(token))
	msg.SetBodyString(gomail.TypeTextPlain, "Your password reset link:\n\n"+link+"\n\nThis link expires in one hour.")
	msg.AddAlternativeString(gomail.TypeTextHTML, fmt.Sprintf(`<p>Your password reset link:</p><p><a href="%s">Click here to reset</a></p>`, link))
	return msg, nil
}

func (m *ResetMailer) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}

	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}
