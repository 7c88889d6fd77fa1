package email

import (
	"bytes"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/ianaindex"
)

// charsetReader returns a reader that decodes r from the named charset to
// UTF-8. go-message's table is consulted first, then the IANA index. An
// unknown charset yields r unchanged; callers sanitize the result.
func charsetReader(name string, r io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "us-ascii", "ascii", "utf-8", "utf8", "default":
		return r, nil
	}
	if cr, err := charset.Reader(name, r); err == nil {
		return cr, nil
	}
	enc, _ := ianaindex.MIME.Encoding(name)
	if enc == nil {
		enc, _ = ianaindex.IANA.Encoding(name)
	}
	if enc == nil {
		return r, nil
	}
	return enc.NewDecoder().Reader(r), nil
}

// decodeCharset transcodes data to valid UTF-8. Invalid sequences become
// U+FFFD; it never fails.
func decodeCharset(data []byte, name string) string {
	r, _ := charsetReader(name, bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		out = data
	}
	return strings.ToValidUTF8(string(out), "�")
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// DecodeWords decodes RFC 2047 encoded-words in a header value. Each word
// is decoded with its own charset and the pieces are concatenated.
func DecodeWords(s string) string {
	if !strings.Contains(s, "=?") {
		return strings.ToValidUTF8(s, "�")
	}
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return strings.ToValidUTF8(s, "�")
	}
	return strings.ToValidUTF8(decoded, "�")
}
