package models

import "time"

// Address is a single mailbox in a header field
type Address struct {
	Address string `json:"email"`
	Name    string `json:"name"`
}

// Attachment describes a non-text part. Content is never fetched eagerly;
// Part is the dotted MIME locator used to fetch it later.
type Attachment struct {
	Filename string `json:"filename"`
	Part     string `json:"part"`
	Size     uint32 `json:"size"`
	MIMEType string `json:"mime_type"`
}

// Email is a normalized message as seen through one account and folder.
type Email struct {
	UID          uint32       `json:"uid"`
	AccountID    int64        `json:"account_id"`
	AccountEmail string       `json:"account_email"`
	Folder       string       `json:"folder"`
	Subject      string       `json:"subject"`
	From         Address      `json:"from"`
	To           []Address    `json:"to"`
	Cc           []Address    `json:"cc"`
	Date         time.Time    `json:"date"`
	Seen         bool         `json:"seen"`
	Size         uint32       `json:"size"`
	Body         string       `json:"body,omitempty"` // HTML if the message has one, else plain text
	Attachments  []Attachment `json:"attachments"`
}

// OutgoingAttachment is a file on local disk to attach to an outgoing message.
type OutgoingAttachment struct {
	Name string
	Path string
}

// OutgoingMessage is what the sender composes and dispatches.
type OutgoingMessage struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	HTMLBody    string
	Attachments []OutgoingAttachment
}

// Recipients returns every envelope recipient, Bcc included.
func (m *OutgoingMessage) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return append(out, m.Bcc...)
}

// MessageRef points at one message in one account's folder.
type MessageRef struct {
	AccountID int64  `json:"account_id"`
	UID       uint32 `json:"uid"`
	Folder    string `json:"folder"`
}
