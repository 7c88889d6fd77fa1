package email

import (
	"context"
	"sort"

	"github.com/mixelka/unimail/pkg/models"
)

// window returns the sequence range for a newest-first page: the newest
// message is number total, and offset counts back from it. Pagination is by
// sequence number and shifts if the folder changes between pages.
func window(total uint32, limit, offset int) (from, to uint32, ok bool) {
	if total == 0 || limit <= 0 || offset < 0 || uint64(offset) >= uint64(total) {
		return 0, 0, false
	}
	end := int64(total) - int64(offset)
	start := end - int64(limit) + 1
	if start < 1 {
		start = 1
	}
	return uint32(start), uint32(end), true
}

// fetchPage reads one page of headers from the selected folder, newest first.
// Messages whose envelope could not be read are skipped.
func (a *Aggregator) fetchPage(ctx context.Context, s Session, acc *models.Account, limit, offset int) ([]models.Email, error) {
	out := []models.Email{}
	from, to, ok := window(s.Messages(), limit, offset)
	if !ok {
		return out, nil
	}

	msgs, err := s.FetchHeaders(ctx, from, to)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SeqNum > msgs[j].SeqNum
	})

	for _, msg := range msgs {
		if msg == nil || msg.Envelope == nil {
			a.logger.Debug("skipping unreadable header", "account_id", acc.ID, "folder", s.Folder())
			continue
		}
		e := a.codec.DecodeHeader(msg)
		e.AccountID = acc.ID
		e.AccountEmail = acc.Email
		e.Folder = s.Folder()
		out = append(out, e)
	}
	return out, nil
}
