package notify

import (
	"context"
	"log"
	"time"

	"caseline/internal/domain"
	"caseline/internal/ledger"
)

const (
	defaultWatchInterval = 2 * time.Second
	defaultWatchBatch    = 100

	webhookFeedCursor = "webhooks"
)

// Watcher tails the audit ledger and streams every transition record to the
// dispatcher, giving webhook consumers the full feed rather than only the
// transitions flagged notification-bearing. The tail position is persisted
// under a named feed cursor, so a restart resumes where delivery left off
// instead of replaying the ledger.
type Watcher struct {
	Ledger     ledger.Writer
	Dispatcher *Dispatcher
	Interval   time.Duration

	cursor int64
	primed bool
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.sync(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sync delivers everything past the cursor, loading the persisted position
// on first use. The cursor is stored after each batch; a crash between
// delivery and store can re-send at most one batch, and consumers
// deduplicate on (case_id, seq).
func (w *Watcher) sync(ctx context.Context) {
	if !w.primed {
		pos, err := w.Ledger.OpenFeedCursor(ctx, webhookFeedCursor)
		if err != nil {
			log.Printf("notify: %v", err)
			return
		}
		w.cursor = pos
		w.primed = true
	}
	for {
		records, cursor, err := w.Ledger.RecordsAfter(ctx, defaultWatchBatch, w.cursor)
		if err != nil {
			log.Printf("notify: ledger tail failed: %v", err)
			return
		}
		if len(records) == 0 {
			return
		}
		for _, rec := range records {
			w.Dispatcher.DispatchFeed(eventFromRecord(rec))
		}
		w.cursor = cursor
		if err := w.Ledger.StoreFeedCursor(ctx, webhookFeedCursor, cursor); err != nil {
			log.Printf("notify: %v", err)
		}
	}
}

func eventFromRecord(rec domain.TransitionRecord) Event {
	return Event{
		CaseID:     rec.CaseID,
		Seq:        rec.Seq,
		Transition: rec.Transition,
		FromState:  rec.FromState,
		ToState:    rec.ToState,
		ActorID:    rec.ActorID,
		TS:         rec.TS,
	}
}
