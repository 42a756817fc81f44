// Package gmail reads attachment candidates through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/gauth"
	"github.com/joseph-ayodele/invoices-tracker/internal/mailbox"
)

const (
	me         = "me"
	pageSize   = 100
	DefaultMax = 100
)

// Mailbox is one user's Gmail account.
type Mailbox struct {
	srv    *gmailapi.Service
	max    int
	logger *slog.Logger
}

func NewMailbox(srv *gmailapi.Service, maxMessages int, logger *slog.Logger) *Mailbox {
	if maxMessages <= 0 {
		maxMessages = DefaultMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailbox{srv: srv, max: maxMessages, logger: logger}
}

// Provider builds a Mailbox per user from stored OAuth tokens.
type Provider struct {
	oauth  *gauth.OAuth
	max    int
	logger *slog.Logger
}

func NewProvider(oauth *gauth.OAuth, maxMessages int, logger *slog.Logger) *Provider {
	return &Provider{oauth: oauth, max: maxMessages, logger: logger}
}

func (p *Provider) Mailbox(ctx context.Context, userID string) (mailbox.Mailbox, error) {
	client, err := p.oauth.Client(ctx, userID)
	if err != nil {
		return nil, err
	}
	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewMailbox(srv, p.max, p.logger.With("user_id", userID)), nil
}

// ListAttachmentCandidates pages through messages with attachments after
// since. A message that fails to load is skipped.
func (m *Mailbox) ListAttachmentCandidates(ctx context.Context, since time.Time) ([]entity.MessageCandidate, error) {
	q := fmt.Sprintf("has:attachment after:%d", since.Unix())

	var ids []string
	pageToken := ""
	for len(ids) < m.max {
		call := m.srv.Users.Messages.List(me).Q(q).MaxResults(int64(min(pageSize, m.max-len(ids)))).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		pageToken = resp.NextPageToken
		if pageToken == "" || len(resp.Messages) == 0 {
			break
		}
	}
	if len(ids) > m.max {
		ids = ids[:m.max]
	}

	out := make([]entity.MessageCandidate, 0, len(ids))
	for _, id := range ids {
		full, err := m.srv.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
		if err != nil {
			m.logger.Warn("gmail.message.fetch_failed", "message_id", id, "err", err)
			continue
		}
		atts := collectAttachments(full.Payload)
		if len(atts) == 0 {
			continue
		}
		out = append(out, entity.MessageCandidate{
			MessageID:    full.Id,
			InternalDate: time.UnixMilli(full.InternalDate).UTC(),
			Attachments:  atts,
		})
	}
	m.logger.Info("gmail.list", "query", q, "listed", len(ids), "candidates", len(out))
	return out, nil
}

func (m *Mailbox) DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	part, err := m.srv.Users.Messages.Attachments.Get(me, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	data, err := base64.URLEncoding.DecodeString(part.Data)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(part.Data)
		if err != nil {
			return nil, fmt.Errorf("decode attachment: %w", err)
		}
	}
	return data, nil
}

func collectAttachments(payload *gmailapi.MessagePart) []entity.AttachmentMeta {
	if payload == nil {
		return nil
	}
	var out []entity.AttachmentMeta
	var walk func(parts []*gmailapi.MessagePart)
	walk = func(parts []*gmailapi.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
				out = append(out, entity.AttachmentMeta{
					AttachmentID: part.Body.AttachmentId,
					Filename:     part.Filename,
					MimeType:     part.MimeType,
					Size:         part.Body.Size,
				})
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk([]*gmailapi.MessagePart{payload})
	return out
}
