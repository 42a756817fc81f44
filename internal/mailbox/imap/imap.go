// Package imap reads attachment candidates from an IMAP mailbox.
package imap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	imapv1 "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

const DefaultMax = 100

type Config struct {
	Addr     string // host:993
	Username string
	Password string
	Mailbox  string
	Max      int
}

// Mailbox dials per call; message ids are UIDs and attachment ids are the
// attachment's 1-based position in the MIME walk.
type Mailbox struct {
	cfg    Config
	logger *slog.Logger
	dial   func(addr string) (*client.Client, error)
}

func New(cfg Config, logger *slog.Logger) *Mailbox {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailbox{
		cfg:    cfg,
		logger: logger,
		dial:   func(addr string) (*client.Client, error) { return client.DialTLS(addr, nil) },
	}
}

func (m *Mailbox) connect(ctx context.Context) (*client.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := m.dial(m.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial imap: %w", err)
	}
	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(m.cfg.Mailbox, true); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select %s: %w", m.cfg.Mailbox, err)
	}
	return c, nil
}

var section = &imapv1.BodySectionName{Peek: true}

// ListAttachmentCandidates fetches the newest Max messages since the window
// start. SINCE is day-granular, so internal dates are filtered again here.
func (m *Mailbox) ListAttachmentCandidates(ctx context.Context, since time.Time) ([]entity.MessageCandidate, error) {
	c, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	criteria := imapv1.NewSearchCriteria()
	criteria.Since = since
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > m.cfg.Max {
		uids = uids[len(uids)-m.cfg.Max:]
	}

	seqset := new(imapv1.SeqSet)
	seqset.AddNum(uids...)
	items := []imapv1.FetchItem{imapv1.FetchUid, imapv1.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imapv1.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var out []entity.MessageCandidate
	for msg := range messages {
		if msg.InternalDate.Before(since) {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		atts, err := ParseAttachments(body)
		if err != nil {
			m.logger.Warn("imap.message.parse_failed", "uid", msg.Uid, "err", err)
			continue
		}
		if len(atts) == 0 {
			continue
		}
		cand := entity.MessageCandidate{
			MessageID:    strconv.FormatUint(uint64(msg.Uid), 10),
			InternalDate: msg.InternalDate.UTC(),
		}
		for _, a := range atts {
			cand.Attachments = append(cand.Attachments, a.AttachmentMeta)
		}
		out = append(out, cand)
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("uid fetch: %w", err)
	}
	m.logger.Info("imap.list", "mailbox", m.cfg.Mailbox, "searched", len(uids), "candidates", len(out))
	return out, nil
}

func (m *Mailbox) DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("message id %q is not a uid", messageID)
	}
	c, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	seqset := new(imapv1.SeqSet)
	seqset.AddNum(uint32(uid))
	messages := make(chan *imapv1.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imapv1.FetchItem{section.FetchItem()}, messages)
	}()

	var atts []Attachment
	var parseErr error
	for msg := range messages {
		if body := msg.GetBody(section); body != nil {
			atts, parseErr = ParseAttachments(body)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch: %w", err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	for _, a := range atts {
		if a.AttachmentID == attachmentID {
			return a.Data, nil
		}
	}
	return nil, fmt.Errorf("attachment %s not found in message %s", attachmentID, messageID)
}

// Attachment is a parsed MIME attachment.
type Attachment struct {
	entity.AttachmentMeta
	Data []byte
}

// ParseAttachments walks a raw RFC 5322 message and returns its attachments
// in order.
func ParseAttachments(r io.Reader) ([]Attachment, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var out []Attachment
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		h, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, _ := h.Filename()
		if strings.TrimSpace(filename) == "" {
			filename = "attachment"
		}
		contentType, _, _ := h.ContentType()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, part.Body); err != nil {
			continue
		}
		out = append(out, Attachment{
			AttachmentMeta: entity.AttachmentMeta{
				AttachmentID: strconv.Itoa(len(out) + 1),
				Filename:     filename,
				MimeType:     contentType,
				Size:         int64(buf.Len()),
			},
			Data: buf.Bytes(),
		})
	}
	return out, nil
}
