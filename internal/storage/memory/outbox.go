package memory

import (
	"context"
	"time"

	"presupuestos/internal/budget"
)

func (s *Store) DequeueEvents(_ context.Context, limit int) ([]budget.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []budget.OutboxEvent
	for i := range s.st.outbox {
		item := &s.st.outbox[i]
		if item.status != "pending" {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		item.status = "processing"
		item.updatedAt = time.Now()
		out = append(out, item.OutboxEvent)
	}
	return out, nil
}

func (s *Store) update(seq int64, fn func(*outboxItem)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.outbox {
		if s.st.outbox[i].Seq == seq {
			fn(&s.st.outbox[i])
			s.st.outbox[i].updatedAt = time.Now()
			return
		}
	}
}

func (s *Store) MarkPublished(_ context.Context, seq int64) error {
	s.update(seq, func(it *outboxItem) {
		it.status = "published"
		it.Attempts++
		it.processedAt = time.Now()
	})
	return nil
}

func (s *Store) MarkRetry(_ context.Context, seq int64, cause string) error {
	s.update(seq, func(it *outboxItem) {
		it.status = "pending"
		it.Attempts++
		it.lastError = cause
	})
	return nil
}

func (s *Store) Release(_ context.Context, seq int64) error {
	s.update(seq, func(it *outboxItem) {
		if it.status == "processing" {
			it.status = "pending"
		}
	})
	return nil
}

func (s *Store) MarkFailed(_ context.Context, seq int64, cause string) error {
	s.update(seq, func(it *outboxItem) {
		it.status = "failed"
		it.Attempts++
		it.lastError = cause
	})
	return nil
}

func (s *Store) ResetStale(_ context.Context, age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-age)
	n := 0
	for i := range s.st.outbox {
		it := &s.st.outbox[i]
		if it.status == "processing" && !it.updatedAt.After(cutoff) {
			it.status = "pending"
			it.updatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *Store) Cleanup(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.st.outbox[:0:0]
	n := 0
	for _, it := range s.st.outbox {
		if it.status == "published" && it.processedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, it)
	}
	s.st.outbox = kept
	return n, nil
}

func (s *Store) Stats(_ context.Context) (budget.OutboxStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st budget.OutboxStats
	for _, it := range s.st.outbox {
		switch it.status {
		case "pending":
			st.Pending++
		case "processing":
			st.Processing++
		case "published":
			st.Published++
		case "failed":
			st.Failed++
		}
	}
	return st, nil
}
