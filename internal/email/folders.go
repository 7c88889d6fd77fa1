package email

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Logical folder roles.
const (
	FolderInbox  = "INBOX"
	FolderSent   = "Sent"
	FolderSpam   = "Spam"
	FolderTrash  = "Trash"
	FolderDrafts = "Drafts"
)

// defaultCandidates lists the literal names providers use for each role, most
// likely first. Keys are lower-cased role names.
var defaultCandidates = map[string][]string{
	"inbox": {"INBOX"},
	"spam": {
		"Junk", "Spam", "Junk E-mail", "[Gmail]/Spam", "[Gmail]/İstenmeyen",
		"INBOX.Spam", "INBOX.Junk", "Junk Mail", "[Gmail]/Junk", "Bulk Mail", "İstenmeyen",
	},
	"trash": {
		"Trash", "[Gmail]/Trash", "[Gmail]/Çöp Kutusu", "Deleted Items", "Deleted Messages",
		"INBOX.Trash", "Çöp Kutusu", "[Gmail]/Bin", "Deleted",
	},
	"sent": {
		"Sent", "[Gmail]/Sent Mail", "[Gmail]/Gönderilmiş Postalar", "Sent Items",
		"Sent Messages", "INBOX.Sent", "Gönderilmiş",
	},
	"drafts": {"Drafts", "[Gmail]/Drafts", "[Gmail]/Taslaklar", "Draft", "INBOX.Drafts"},
}

// FolderResolver maps logical folder names to ordered candidate lists.
// It holds no per-account state: the same resolver serves every session.
type FolderResolver struct {
	candidates map[string][]string
}

// NewFolderResolver builds a resolver from the built-in table. A non-empty
// override list replaces the built-in list for that role.
func NewFolderResolver(overrides map[string][]string) *FolderResolver {
	c := make(map[string][]string, len(defaultCandidates)+len(overrides))
	for k, v := range defaultCandidates {
		c[k] = v
	}
	for k, v := range overrides {
		if len(v) > 0 {
			c[strings.ToLower(k)] = v
		}
	}
	return &FolderResolver{candidates: c}
}

// Resolve returns the candidate list for a logical name. Unknown names are
// returned as a single literal candidate; an empty name means the inbox.
func (r *FolderResolver) Resolve(logical string) []string {
	if logical == "" {
		logical = FolderInbox
	}
	if c, ok := r.candidates[strings.ToLower(logical)]; ok {
		return append([]string(nil), c...)
	}
	return []string{logical}
}

// Locate reselects s into the first existing candidate for logical and
// returns the literal name. On failure the session stays on its previous folder.
func (r *FolderResolver) Locate(ctx context.Context, s Session, logical string) (string, error) {
	candidates := r.Resolve(logical)
	if len(candidates) > 0 && candidates[0] == s.Folder() {
		return s.Folder(), nil
	}
	folder, _, err := firstSuccess(ctx, candidates, func(name string) error {
		if !s.Reselect(ctx, name) {
			return ErrNoSuchFolder
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &FolderNotFoundError{Logical: logical, Tried: candidates}
	}
	return folder, nil
}

// haltError stops firstSuccess early; the wrapped error is recorded as the
// last attempt.
type haltError struct{ err error }

func (h *haltError) Error() string { return h.err.Error() }
func (h *haltError) Unwrap() error { return h.err }

// halt makes try's failure terminal for the surrounding firstSuccess.
func halt(err error) error { return &haltError{err: err} }

// errExhausted is returned by firstSuccess when every item failed.
var errExhausted = errors.New("all candidates failed")

// firstSuccess calls try for each item in order and stops at the first one
// that returns nil. It returns the winner, every error seen along the way (one
// per failed item, in order) and errExhausted, a halt error or the context
// error when nothing succeeded.
func firstSuccess[T any](ctx context.Context, items []T, try func(T) error) (T, []error, error) {
	var (
		zero T
		errs []error
	)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return zero, errs, err
		}
		err := try(item)
		if err == nil {
			return item, errs, nil
		}
		var h *haltError
		if errors.As(err, &h) {
			errs = append(errs, h.err)
			return zero, errs, h.err
		}
		errs = append(errs, err)
	}
	return zero, errs, errExhausted
}

// LoadFolderCandidates reads per-role candidate overrides from a YAML file:
//
//	folders:
//	  spam: ["Junk", "Spam"]
//	  trash: ["Deleted Items"]
//
// A missing file yields no overrides.
func LoadFolderCandidates(path string) (map[string][]string, error) {
	if path == "" {
		return nil, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return nil, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read folder config %s: %w", path, err)
	}

	return v.GetStringMapStringSlice("folders"), nil
}
