package connectors

import (
	"context"
	"path/filepath"
	"strings"

	"procparse/internal"
	"procparse/internal/pipeline"
)

// MailConnector pulls raw messages from a mailbox label.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// IsDocumentAttachment reports whether an attachment is worth storing as its own
// document. Plain text attachments stay with the message body.
func IsDocumentAttachment(name string) bool {
	name = strings.TrimSpace(name)
	return pipeline.SupportedExtension(name) && !strings.EqualFold(filepath.Ext(name), ".txt")
}

// DocumentAttachments keeps the names IsDocumentAttachment accepts.
func DocumentAttachments(names []string) []string {
	var out []string
	for _, n := range names {
		if IsDocumentAttachment(n) {
			out = append(out, strings.TrimSpace(n))
		}
	}
	return out
}
