package extract

import (
	"context"
	"sync"

	"github.com/joseph-ayodele/invoices-tracker/constants"
)

// TextSource turns document bytes into plain text (text layer or OCR).
type TextSource interface {
	ExtractText(ctx context.Context, filename string, data []byte) (string, error)
}

// Document is one attachment under extraction. Its text is extracted at most
// once and shared by the classifier and every text-based stage.
type Document struct {
	Filename string
	MimeType string
	Data     []byte

	src     TextSource
	once    sync.Once
	text    string
	textErr error
}

func NewDocument(filename, mimeType string, data []byte, src TextSource) *Document {
	if mimeType == "" {
		mimeType = constants.MimeTypeFor(filename)
	}
	return &Document{Filename: filename, MimeType: mimeType, Data: data, src: src}
}

// NewTextDocument wraps text that is already known.
func NewTextDocument(filename, text string) *Document {
	d := &Document{Filename: filename, MimeType: "text/plain"}
	d.once.Do(func() { d.text = text })
	return d
}

// Text never fails; extraction errors yield "" and are kept for TextErr.
func (d *Document) Text(ctx context.Context) string {
	d.once.Do(func() {
		if d.src == nil {
			return
		}
		d.text, d.textErr = d.src.ExtractText(ctx, d.Filename, d.Data)
		if d.textErr != nil {
			d.text = ""
		}
	})
	return d.text
}

func (d *Document) TextErr() error {
	return d.textErr
}

func (d *Document) Format() constants.Format {
	return constants.FormatFor(d.Filename, d.MimeType)
}
