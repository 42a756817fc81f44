// Package mailbox defines the mailbox collaborator the scan reads from.
package mailbox

import (
	"context"
	"sort"
	"time"

	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

// Mailbox lists messages with attachments and downloads their bytes.
// Implementations cap the listing themselves; a short list is not an error.
type Mailbox interface {
	ListAttachmentCandidates(ctx context.Context, since time.Time) ([]entity.MessageCandidate, error)
	DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Provider opens the mailbox of a user.
type Provider interface {
	Mailbox(ctx context.Context, userID string) (Mailbox, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, userID string) (Mailbox, error)

func (f ProviderFunc) Mailbox(ctx context.Context, userID string) (Mailbox, error) {
	return f(ctx, userID)
}

// Static serves the same mailbox for every user.
func Static(m Mailbox) Provider {
	return ProviderFunc(func(context.Context, string) (Mailbox, error) { return m, nil })
}

// SortOldestFirst orders candidates by internal date, then message id.
func SortOldestFirst(msgs []entity.MessageCandidate) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].InternalDate.Equal(msgs[j].InternalDate) {
			return msgs[i].InternalDate.Before(msgs[j].InternalDate)
		}
		return msgs[i].MessageID < msgs[j].MessageID
	})
}
