package entity

import "time"

// AttachmentMeta describes an attachment before it is downloaded.
type AttachmentMeta struct {
	AttachmentID string `json:"attachment_id"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
}

// MessageCandidate is a mailbox message that carries at least one attachment.
type MessageCandidate struct {
	MessageID    string           `json:"message_id"`
	InternalDate time.Time        `json:"internal_date"`
	Attachments  []AttachmentMeta `json:"attachments"`
}

// CandidateAttachment is transient: built per iteration, never persisted.
type CandidateAttachment struct {
	MessageID    string
	AttachmentID string
	Filename     string
	MimeType     string
	Data         []byte
}

// UploadResult is what a storage collaborator hands back.
type UploadResult struct {
	FileID   string `json:"file_id"`
	ViewLink string `json:"view_link"`
}
