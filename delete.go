package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/intent"
	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
	"github.com/Protocol-Lattice/journal-agent/src/memory/store"
)

// requestDelete computes what a delete would remove and parks it as the
// session's pending action. Nothing is mutated until confirmDelete.
func (a *Agent) requestDelete(ctx context.Context, st *State, res intent.Result) (string, error) {
	now := a.now()
	switch res.Intent {
	case intent.DeleteEntry:
		id := res.Entities[intent.EntityEntryID]
		if id == "" && len(st.LastEntriesShown) > 0 {
			id = st.LastEntriesShown[0]
		}
		if id == "" {
			st.Pending = nil
			return replyWhichEntry, nil
		}
		m, err := a.lookupEntry(ctx, st.UserID, id)
		if errors.Is(err, store.ErrNotFound) {
			st.Pending = nil
			return replyEntryNotFound, nil
		}
		if err != nil {
			return "", err
		}
		st.Pending = &PendingAction{Kind: PendingSingle, EntryID: m.ID, Count: 1, RequestedAt: now}
		return fmt.Sprintf("Delete your entry from %s: %q?%s", m.CreatedAt.Format("Jan 02"), truncate(m.Text, 60), confirmSuffix), nil

	case intent.DeleteRange:
		start, end, ok := res.DateRange()
		if !ok {
			start, end = intent.ExtractDateRange(now, res.Text)
		}
		n, err := a.engine.CountByDateRange(ctx, st.UserID, start, end)
		if err != nil {
			return "", fmt.Errorf("count entries: %w", err)
		}
		if n == 0 {
			st.Pending = nil
			return fmt.Sprintf("There are no entries between %s and %s.", formatDay(start), formatDay(end)), nil
		}
		st.Pending = &PendingAction{Kind: PendingRange, Start: start, End: end, Count: n, RequestedAt: now}
		return fmt.Sprintf("That will delete %s from %s to %s.%s", entries(n), formatDay(start), formatDay(end), confirmSuffix), nil

	default:
		n, err := a.engine.EntryCount(ctx, st.UserID)
		if err != nil {
			return "", fmt.Errorf("count entries: %w", err)
		}
		if n == 0 {
			st.Pending = nil
			return replyJournalEmpty, nil
		}
		st.Pending = &PendingAction{Kind: PendingAll, Count: n, RequestedAt: now}
		return fmt.Sprintf("That will delete all %s in your journal.%s", entries(n), confirmSuffix), nil
	}
}

// confirmDelete executes exactly the stored action once. A failed delete keeps
// the action pending so it can be confirmed again.
func (a *Agent) confirmDelete(ctx context.Context, st *State) (string, error) {
	p := st.Pending
	if p == nil {
		return replyNothingPending, nil
	}
	var (
		n   int
		err error
	)
	switch p.Kind {
	case PendingSingle:
		var ok bool
		ok, err = a.engine.SoftDelete(ctx, st.UserID, p.EntryID)
		if ok {
			n = 1
		}
	case PendingRange:
		n, err = a.engine.DeleteByDateRange(ctx, st.UserID, p.Start, p.End)
	case PendingAll:
		n, err = a.engine.DeleteAll(ctx, st.UserID)
	default:
		st.Pending = nil
		return replyNothingPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("delete %s: %w", p.Kind, err)
	}
	st.Pending = nil
	st.LastEntriesShown = nil
	a.logf("deleted %d entries (%s) for %s", n, p.Kind, st.UserID)
	return fmt.Sprintf("Deleted %s.", entries(n)), nil
}

// lookupEntry resolves an id spoken or typed by the user. Ids are matched as
// given and upper-cased, since transcripts lowercase them.
func (a *Agent) lookupEntry(ctx context.Context, userID, id string) (model.Memory, error) {
	candidates := []string{id}
	if up := strings.ToUpper(id); up != id {
		candidates = append(candidates, up)
	}
	for _, c := range candidates {
		m, err := a.engine.Get(ctx, c)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return model.Memory{}, fmt.Errorf("get entry: %w", err)
		}
		if m.UserID != userID {
			continue
		}
		return m, nil
	}
	return model.Memory{}, store.ErrNotFound
}

func entries(n int) string {
	if n == 1 {
		return "1 entry"
	}
	return fmt.Sprintf("%d entries", n)
}

func formatDay(t time.Time) string {
	return t.Format("Jan 02")
}
