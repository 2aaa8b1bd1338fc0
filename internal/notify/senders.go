package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"cafeteria/internal/core"
)

// LogSender writes notifications to the log instead of delivering them.
// It accepts every recipient and is the development default.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string                   { return "log" }
func (s *LogSender) CanDeliver(core.Recipient) bool { return true }

func (s *LogSender) Deliver(_ context.Context, n core.Notification) error {
	s.logger.Info("notification", "kind", n.Kind, "to", n.Recipient.Name,
		"email", n.Recipient.Email, "subject", n.Subject, "link", n.Link)
	return nil
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers notifications as plain-text e-mail.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Name() string { return "email" }

func (s *SMTPSender) CanDeliver(r core.Recipient) bool { return strings.TrimSpace(r.Email) != "" }

func (s *SMTPSender) Deliver(_ context.Context, n core.Notification) error {
	to, err := mail.ParseAddress(n.Recipient.Email)
	if err != nil {
		return Permanentf("invalid recipient address %q: %w", n.Recipient.Email, err)
	}
	from, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return Permanentf("invalid sender address %q: %w", s.cfg.From, err)
	}
	if n.Recipient.Name != "" {
		to.Name = n.Recipient.Name
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", to.String())
	fmt.Fprintf(&msg, "Subject: %s\r\n", mimeHeader(n.Subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(n.Body, "\n", "\r\n"))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, from.Address, []string{to.Address}, msg.Bytes()); err != nil {
		return classifySMTP(err)
	}
	return nil
}

// classifySMTP treats 5xx replies as permanent; connection and 4xx failures are transient.
func classifySMTP(err error) error {
	var tp *textproto.Error
	if errors.As(err, &tp) && tp.Code >= 500 {
		return Permanent(fmt.Errorf("smtp: %w", err))
	}
	return fmt.Errorf("smtp: %w", err)
}

func mimeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
		}
	}
	return s
}

// TelegramSender delivers notifications through the Telegram Bot API.
type TelegramSender struct {
	apiURL string
	token  string
	client *http.Client
}

func NewTelegramSender(apiURL, token string, client *http.Client) *TelegramSender {
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TelegramSender{apiURL: strings.TrimRight(apiURL, "/"), token: token, client: client}
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) CanDeliver(r core.Recipient) bool {
	return strings.TrimSpace(r.TelegramChatID) != ""
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (s *TelegramSender) Deliver(ctx context.Context, n core.Notification) error {
	text := n.Subject + "\n\n" + n.Body
	payload, err := json.Marshal(telegramMessage{ChatID: n.Recipient.TelegramChatID, Text: text})
	if err != nil {
		return Permanentf("encode telegram message: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Permanentf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var tr telegramResponse
	_ = json.Unmarshal(body, &tr)
	err = fmt.Errorf("telegram: status %d: %s", resp.StatusCode, tr.Description)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests &&
		resp.StatusCode != http.StatusRequestTimeout {
		return Permanent(err)
	}
	return err
}
