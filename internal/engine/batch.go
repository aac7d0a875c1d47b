package engine

import (
	"context"
	"log"
)

// BatchResult summarizes one page of a batch recompute.
type BatchResult struct {
	NextCursor string
	Processed  int
	Failed     int
	Done       bool
}

// RecomputeBatch refreshes cached scores for one page of contacts, in
// stable id order starting after cursor. One contact failing is logged and
// counted, never aborts the page; each contact's refresh is its own atomic
// unit. Cancellation via ctx stops between contacts, leaving the rest
// simply not-yet-refreshed.
func (e *Engine) RecomputeBatch(ctx context.Context, cursor string, pageSize int) (BatchResult, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	contacts, err := e.DB.ListContactsPage(cursor, pageSize)
	if err != nil {
		return BatchResult{}, err
	}
	if len(contacts) == 0 {
		return BatchResult{NextCursor: cursor, Done: true}, nil
	}

	res := BatchResult{NextCursor: cursor}
	for i := range contacts {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if _, err := e.RecomputeOne(ctx, contacts[i].ID); err != nil {
			log.Printf("recompute batch: contact %s: %v", contacts[i].ID, err)
			res.Failed++
		} else {
			res.Processed++
		}
		res.NextCursor = contacts[i].ID
	}

	res.Done = len(contacts) < pageSize
	return res, nil
}
