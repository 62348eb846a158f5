package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"procparse/internal"
	"procparse/internal/config"
	"procparse/internal/connectors"
)

// session is the part of the go-imap client the connector drives.
type session interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Store(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Logout() error
}

type Connector struct {
	markSeen bool
	dial     func() (session, error)
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort)
	dial := func() (session, error) {
		var c *imapclient.Client
		var err error
		if cfg.IMAPSecure {
			c, err = imapclient.DialTLS(addr, &tls.Config{ServerName: cfg.IMAPHost})
		} else {
			c, err = imapclient.Dial(addr)
		}
		if err != nil {
			return nil, fmt.Errorf("imap dial %s: %w", addr, err)
		}
		if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
			c.Logout()
			return nil, fmt.Errorf("imap login: %w", err)
		}
		return c, nil
	}
	return &Connector{markSeen: cfg.IMAPMarkSeen, dial: dial}, nil
}

// FetchInbox returns up to max unseen messages of the mailbox, newest last, with the
// document attachments announced by each message's body structure. The IMAP client
// has no context support, so ctx is checked between messages.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer s.Logout()

	if _, err := s.Select(label, false); err != nil {
		return nil, fmt.Errorf("select %s: %w", label, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := s.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, imap.FetchBodyStructure, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- s.Fetch(seqset, items, messages) }()

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	var seen []uint32
	var readErr error
	for msg := range messages {
		if msg == nil || ctx.Err() != nil || readErr != nil {
			continue
		}
		fetched, ok, err := toFetched(msg, section)
		if err != nil {
			readErr = err
			continue
		}
		if !ok {
			continue
		}
		out = append(out, fetched)
		seen = append(seen, msg.SeqNum)
	}

	if err := <-fetchDone; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.markSeen && len(seen) > 0 {
		set := new(imap.SeqSet)
		set.AddNum(seen...)
		op := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := s.Store(set, op, []interface{}{imap.SeenFlag}, nil); err != nil {
			return nil, fmt.Errorf("mark seen: %w", err)
		}
	}
	return out, nil
}

func toFetched(msg *imap.Message, section *imap.BodySectionName) (internal.FetchedMailMessage, bool, error) {
	body := msg.GetBody(section)
	if body == nil {
		return internal.FetchedMailMessage{}, false, nil
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return internal.FetchedMailMessage{}, false, fmt.Errorf("read message %d: %w", msg.Uid, err)
	}

	out := internal.FetchedMailMessage{
		Provider:    "imap",
		MessageID:   fmt.Sprintf("imap-%d", msg.Uid),
		ReceivedAt:  time.Now().UTC().Format(time.RFC3339),
		Attachments: attachmentNames(msg.BodyStructure),
		Raw:         raw,
	}
	if env := msg.Envelope; env != nil {
		if env.MessageId != "" {
			out.MessageID = env.MessageId
		}
		out.Subject = env.Subject
		out.From = formatAddresses(env.From)
	}
	if !msg.InternalDate.IsZero() {
		out.ReceivedAt = msg.InternalDate.UTC().Format(time.RFC3339)
	}
	return out, true, nil
}

// attachmentNames lists the document attachments in a body structure.
func attachmentNames(bs *imap.BodyStructure) []string {
	if bs == nil {
		return nil
	}
	var names []string
	bs.Walk(func(_ []int, part *imap.BodyStructure) bool {
		if name, err := part.Filename(); err == nil && name != "" {
			names = append(names, name)
		}
		return true
	})
	return connectors.DocumentAttachments(names)
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(a.MailboxName+"@"+a.HostName, "@")
		if a.PersonalName != "" {
			email = fmt.Sprintf("%s <%s>", a.PersonalName, email)
		}
		parts = append(parts, email)
	}
	return strings.Join(parts, ", ")
}
