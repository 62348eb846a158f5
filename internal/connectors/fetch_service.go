package connectors

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/jhillyerd/enmime"

	"procparse/internal"
)

// FetchService turns mailbox messages into stored documents. Each supported attachment
// becomes its own document; a message without one is stored whole as .eml so its body
// still reaches the pipeline.
type FetchService struct {
	connector MailConnector
	store     *DocumentStore
	logger    *slog.Logger
}

type FetchResult struct {
	Fetched    int
	Stored     int
	Duplicates int
}

func NewFetchService(store *DocumentStore, connector MailConnector, logger *slog.Logger) *FetchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchService{connector: connector, store: store, logger: logger}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s.logger.Debug("mail message", "provider", msg.Provider, "message_id", msg.MessageID, "attachments", msg.Attachments)
		for _, part := range splitMessage(msg, s.logger) {
			doc := internal.DocumentRow{
				Source:     msg.Provider,
				ExternalID: part.externalID,
				Filename:   part.filename,
				Subject:    msg.Subject,
				Sender:     msg.From,
				ReceivedAt: msg.ReceivedAt,
			}
			_, created, err := s.store.Store(doc, part.content)
			if err != nil {
				return res, err
			}
			if created {
				res.Stored++
			} else {
				res.Duplicates++
			}
		}
	}
	s.logger.Info("mail fetched", "label", label, "fetched", res.Fetched, "stored", res.Stored, "duplicates", res.Duplicates)
	return res, nil
}

type mailPart struct {
	externalID string
	filename   string
	content    []byte
}

func splitMessage(msg internal.FetchedMailMessage, logger *slog.Logger) []mailPart {
	whole := []mailPart{{externalID: msg.MessageID, filename: "message.eml", content: msg.Raw}}

	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		logger.Warn("mail parse failed; storing raw message", "message_id", msg.MessageID, "err", err)
		return whole
	}

	var parts []mailPart
	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if !IsDocumentAttachment(name) {
			continue
		}
		parts = append(parts, mailPart{
			externalID: msg.MessageID + "/" + name,
			filename:   name,
			content:    att.Content,
		})
	}
	if len(parts) == 0 {
		return whole
	}
	return parts
}
