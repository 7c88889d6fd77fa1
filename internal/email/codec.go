package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"

	"github.com/mixelka/unimail/pkg/models"
)

const (
	noSubject     = "(no subject)"
	unknownSender = "Unknown"
)

// PartFetcher fetches the raw bytes of one MIME part.
type PartFetcher interface {
	FetchPart(ctx context.Context, uid uint32, part string) ([]byte, error)
}

// Codec turns protocol structures into models.Email. Decoding is
// best-effort: problems are logged as CodecError and never returned.
type Codec struct {
	logger *slog.Logger
}

// NewCodec creates a new codec
func NewCodec(logger *slog.Logger) *Codec {
	return &Codec{logger: logger.With("component", "codec")}
}

// DecodeHeader fills the header fields of an Email from a fetched message.
func (c *Codec) DecodeHeader(msg *imap.Message) models.Email {
	e := models.Email{
		UID:         msg.Uid,
		Size:        msg.Size,
		Seen:        hasFlag(msg.Flags, imap.SeenFlag),
		Subject:     noSubject,
		From:        models.Address{Name: unknownSender},
		To:          []models.Address{},
		Cc:          []models.Address{},
		Attachments: []models.Attachment{},
	}

	env := msg.Envelope
	if env == nil {
		e.Date = msg.InternalDate
		return e
	}

	if s := strings.TrimSpace(DecodeWords(env.Subject)); s != "" {
		e.Subject = s
	}
	e.Date = env.Date
	if e.Date.IsZero() {
		e.Date = msg.InternalDate
	}
	if from := convertAddresses(env.From); len(from) > 0 {
		e.From = from[0]
	}
	e.To = convertAddresses(env.To)
	e.Cc = convertAddresses(env.Cc)
	return e
}

func convertAddresses(in []*imap.Address) []models.Address {
	out := make([]models.Address, 0, len(in))
	for _, a := range in {
		if a == nil || a.MailboxName == "" {
			continue
		}
		name := DecodeWords(a.PersonalName)
		if name == "" {
			name = a.MailboxName
		}
		out = append(out, models.Address{Address: a.Address(), Name: name})
	}
	return out
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// DecodeBody returns the best displayable body: the first text/html part in
// depth-first order, else the first text/plain part. A single-part message
// is decoded as part "1" when it is text.
func (c *Codec) DecodeBody(ctx context.Context, f PartFetcher, uid uint32, bs *imap.BodyStructure) string {
	if bs == nil {
		return ""
	}

	locator, part := pickBodyPart(bs)
	if part == nil {
		return ""
	}

	raw, err := f.FetchPart(ctx, uid, locator)
	if err != nil {
		c.logger.Warn("failed to fetch body part", "uid", uid, "part", locator, "error", err)
		return ""
	}
	return c.decodePart(raw, locator, part.Encoding, param(part.Params, "charset"))
}

func pickBodyPart(bs *imap.BodyStructure) (string, *imap.BodyStructure) {
	if !isMultipart(bs) {
		if strings.EqualFold(bs.MIMEType, "text") {
			return "1", bs
		}
		return "", nil
	}
	for _, subtype := range []string{"html", "plain"} {
		var (
			found   *imap.BodyStructure
			locator string
		)
		walkParts(bs, nil, func(path []int, p *imap.BodyStructure) bool {
			if strings.EqualFold(p.MIMEType, "text") && strings.EqualFold(p.MIMESubType, subtype) &&
				!strings.EqualFold(p.Disposition, "attachment") {
				found, locator = p, formatPath(path)
				return false
			}
			return true
		})
		if found != nil {
			return locator, found
		}
	}
	return "", nil
}

// decodePart undoes the transfer encoding and transcodes to UTF-8.
func (c *Codec) decodePart(raw []byte, locator, encoding, cs string) string {
	data, err := decodeTransfer(raw, encoding)
	if err != nil {
		c.logger.Debug("partial decode", "error", &CodecError{Part: locator, Err: err})
	}
	return decodeCharset(data, cs)
}

// decodeTransfer reverses a Content-Transfer-Encoding. Unknown encodings
// are treated as identity; a corrupt payload yields what could be decoded.
func decodeTransfer(raw []byte, encoding string) ([]byte, error) {
	var h message.Header
	h.Set("Content-Transfer-Encoding", encoding)

	ent, err := message.New(h, bytes.NewReader(raw))
	if err != nil {
		if message.IsUnknownEncoding(err) {
			return raw, err
		}
		return raw, fmt.Errorf("failed to read part: %w", err)
	}

	out, err := io.ReadAll(ent.Body)
	if err != nil {
		return out, fmt.Errorf("failed to decode %s: %w", encoding, err)
	}
	return out, nil
}

// DecodeAttachments lists every named non-text leaf part. Content is never
// fetched here.
func (c *Codec) DecodeAttachments(bs *imap.BodyStructure) []models.Attachment {
	out := []models.Attachment{}
	if bs == nil {
		return out
	}

	add := func(path []int, p *imap.BodyStructure) {
		if strings.EqualFold(p.MIMEType, "text") {
			return
		}
		name := param(p.DispositionParams, "filename")
		if name == "" {
			name = param(p.Params, "name")
		}
		if name == "" {
			return
		}
		out = append(out, models.Attachment{
			Filename: DecodeWords(name),
			Part:     formatPath(path),
			Size:     p.Size,
			MIMEType: strings.ToLower(p.MIMEType + "/" + p.MIMESubType),
		})
	}

	if !isMultipart(bs) {
		add([]int{1}, bs)
		return out
	}
	walkParts(bs, nil, func(path []int, p *imap.BodyStructure) bool {
		add(path, p)
		return true
	})
	return out
}

func isMultipart(bs *imap.BodyStructure) bool {
	return strings.EqualFold(bs.MIMEType, "multipart") || len(bs.Parts) > 0
}

// walkParts visits the leaf parts below a multipart in depth-first order,
// each exactly once. fn returns false to stop.
func walkParts(bs *imap.BodyStructure, prefix []int, fn func(path []int, p *imap.BodyStructure) bool) bool {
	for i, p := range bs.Parts {
		if p == nil {
			continue
		}
		path := append(append([]int(nil), prefix...), i+1)
		if isMultipart(p) {
			if !walkParts(p, path, fn) {
				return false
			}
			continue
		}
		if !fn(path, p) {
			return false
		}
	}
	return true
}

func formatPath(path []int) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// param looks a parameter up case-insensitively.
func param(params map[string]string, key string) string {
	if v, ok := params[key]; ok {
		return v
	}
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
