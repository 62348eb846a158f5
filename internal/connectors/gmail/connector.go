package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"procparse/internal"
	"procparse/internal/config"
	"procparse/internal/connectors"
)

type Connector struct {
	service *gmail.Service
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc}, nil
}

// FetchInbox lists up to max messages under label and downloads each in raw form.
// Headers and attachment names come from the MIME body, so a message costs one call.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	list := c.service.Users.Messages.List("me").LabelIds(label).Context(ctx)
	if max > 0 {
		list = list.MaxResults(int64(max))
	}
	resp, err := list.Do()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", label, err)
	}

	out := make([]internal.FetchedMailMessage, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", ref.Id, err)
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, messageFromRaw(ref.Id, raw, msg.InternalDate))
	}
	return out, nil
}

// messageFromRaw fills the message fields from its MIME headers. An unparsable body is
// still returned so the raw message can be stored.
func messageFromRaw(gmailID string, raw []byte, internalDateMs int64) internal.FetchedMailMessage {
	out := internal.FetchedMailMessage{
		Provider:   "gmail",
		MessageID:  gmailID,
		ReceivedAt: receivedAt("", internalDateMs),
		Raw:        raw,
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return out
	}
	if id := strings.TrimSpace(env.GetHeader("Message-ID")); id != "" {
		out.MessageID = id
	}
	out.Subject = env.GetHeader("Subject")
	out.From = env.GetHeader("From")
	out.ReceivedAt = receivedAt(env.GetHeader("Date"), internalDateMs)

	names := make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		names = append(names, att.FileName)
	}
	out.Attachments = connectors.DocumentAttachments(names)
	return out
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}

// receivedAt prefers the Date header and falls back to Gmail's internal date (unix ms).
func receivedAt(dateHeader string, internalDateMs int64) string {
	if dateHeader != "" {
		if t, err := mail.ParseDate(dateHeader); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
		if t, err := mailDateFallback(dateHeader); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	if internalDateMs > 0 {
		return time.UnixMilli(internalDateMs).UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func mailDateFallback(value string) (time.Time, error) {
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC850, time.ANSIC}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format")
}
