package email

import (
	"context"

	"github.com/mixelka/unimail/pkg/models"
)

// BulkItem is the outcome for one message of a bulk operation.
type BulkItem struct {
	Ref models.MessageRef
	Err error
}

// BulkResult summarizes a bulk operation. Success means at least one item
// succeeded; callers inspect Failed and Items for the rest.
type BulkResult struct {
	Success   bool
	Succeeded int
	Failed    int
	Items     []BulkItem
}

func (c *Client) bulk(ctx context.Context, refs []models.MessageRef, fn func(context.Context, models.MessageRef) error) BulkResult {
	items := fanOut(ctx, c.config.MaxParallel, refs, func(ctx context.Context, ref models.MessageRef) BulkItem {
		return BulkItem{Ref: ref, Err: fn(ctx, ref)}
	})

	res := BulkResult{Items: items}
	for _, it := range items {
		if it.Err != nil {
			res.Failed++
			c.logger.Warn("bulk item failed", "account_id", it.Ref.AccountID, "uid", it.Ref.UID, "folder", it.Ref.Folder, "error", it.Err)
			continue
		}
		res.Succeeded++
	}
	res.Success = res.Succeeded > 0
	return res
}

// BulkDelete moves every referenced message to its account's trash.
func (c *Client) BulkDelete(ctx context.Context, userID int64, refs []models.MessageRef) BulkResult {
	return c.bulk(ctx, refs, func(ctx context.Context, ref models.MessageRef) error {
		_, err := c.MoveToTrash(ctx, userID, ref.AccountID, ref.UID, ref.Folder)
		return err
	})
}

// BulkMove moves every referenced message to the logical folder toLogical.
func (c *Client) BulkMove(ctx context.Context, userID int64, refs []models.MessageRef, toLogical string) BulkResult {
	return c.bulk(ctx, refs, func(ctx context.Context, ref models.MessageRef) error {
		_, err := c.MoveToFolder(ctx, userID, ref.AccountID, ref.UID, ref.Folder, toLogical)
		return err
	})
}

// BulkMarkAs sets or clears \Seen on every referenced message.
func (c *Client) BulkMarkAs(ctx context.Context, userID int64, refs []models.MessageRef, seen bool) BulkResult {
	return c.bulk(ctx, refs, func(ctx context.Context, ref models.MessageRef) error {
		return c.MarkAs(ctx, userID, ref.AccountID, ref.UID, seen, ref.Folder)
	})
}
