package imap

import (
	"strings"
	"testing"
)

const rawMessage = "From: billing@acme.test\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Your invoice\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please find the invoice attached.\r\n" +
	"--b1\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"invoice-42.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQK\r\n" +
	"--b1\r\n" +
	"Content-Type: image/png\r\n" +
	"Content-Disposition: attachment\r\n" +
	"\r\n" +
	"png-bytes\r\n" +
	"--b1--\r\n"

func TestParseAttachments(t *testing.T) {
	atts, err := ParseAttachments(strings.NewReader(rawMessage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(atts) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(atts))
	}
	first := atts[0]
	if first.AttachmentID != "1" || first.Filename != "invoice-42.pdf" || first.MimeType != "application/pdf" {
		t.Fatalf("unexpected first attachment %+v", first.AttachmentMeta)
	}
	if string(first.Data) != "%PDF-1.4\n" {
		t.Fatalf("base64 body not decoded: %q", first.Data)
	}
	if atts[1].AttachmentID != "2" || atts[1].Filename != "attachment" {
		t.Fatalf("unexpected second attachment %+v", atts[1].AttachmentMeta)
	}
}

func TestParseAttachmentsNoneInPlainMessage(t *testing.T) {
	raw := "From: a@b.test\r\nSubject: hi\r\nContent-Type: text/plain\r\n\r\nhello\r\n"
	atts, err := ParseAttachments(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(atts) != 0 {
		t.Fatalf("expected no attachments, got %d", len(atts))
	}
}
