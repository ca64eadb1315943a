// Package worker refreshes exported report sheets when budget events arrive.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"presupuestos/internal/core"
	"presupuestos/internal/sheets"
)

// Reporter computes reports and can drop its cache.
type Reporter interface {
	Report(ctx context.Context, q core.ReportQuery) (core.Report, error)
	Invalidate()
}

// ExportWorker rewrites the report tabs affected by a budget event.
type ExportWorker struct {
	reports Reporter
	writer  sheets.ReportWriter
	stores  []string
	// parallel bounds concurrent report writes.
	parallel int
}

func NewExportWorker(reports Reporter, writer sheets.ReportWriter, stores []string) *ExportWorker {
	return &ExportWorker{
		reports:  reports,
		writer:   writer,
		stores:   append([]string(nil), stores...),
		parallel: 4,
	}
}

// Queries returns the reports an event makes stale. A posting touches the
// annual and monthly reports of its store and of all stores. A catalog
// replace touches every annual report.
func (w *ExportWorker) Queries(ev core.Event) []core.ReportQuery {
	annual := func(store string) core.ReportQuery {
		return core.ReportQuery{
			Year:        ev.Year,
			Store:       store,
			View:        core.Annual,
			Consolidate: store == core.AllStores,
		}
	}
	monthly := func(store string) core.ReportQuery {
		q := annual(store)
		q.View = core.Monthly
		q.Month = ev.Month
		return q
	}

	switch ev.Type {
	case core.EventExpensePosted:
		qs := []core.ReportQuery{annual(core.AllStores)}
		if ev.Month.Valid() {
			qs = append(qs, monthly(core.AllStores))
		}
		if ev.Store != "" && !strings.EqualFold(ev.Store, core.AllStores) {
			qs = append(qs, annual(ev.Store))
			if ev.Month.Valid() {
				qs = append(qs, monthly(ev.Store))
			}
		}
		return qs
	case core.EventCatalogReplaced:
		qs := []core.ReportQuery{annual(core.AllStores)}
		for _, s := range w.stores {
			qs = append(qs, annual(s))
		}
		return qs
	default:
		return nil
	}
}

// HandleEvent is the AMQP handler. It drops cached reports first since the
// event was produced by another process.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev core.Event) error {
	qs := w.Queries(ev)
	if len(qs) == 0 {
		slog.WarnContext(ctx, "Ignoring event without reports", "event_id", ev.ID, "event_type", ev.Type)
		return nil
	}
	w.reports.Invalidate()
	if err := w.write(ctx, qs); err != nil {
		return fmt.Errorf("refresh reports for %s %s: %w", ev.Type, ev.ID, err)
	}
	slog.InfoContext(ctx, "Reports refreshed",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"store", ev.Store,
		"reports", len(qs))
	return nil
}

// RefreshAll rewrites the annual report of every store and of all stores.
func (w *ExportWorker) RefreshAll(ctx context.Context, year int) error {
	ev := core.Event{Type: core.EventCatalogReplaced, Year: year}
	w.reports.Invalidate()
	return w.write(ctx, w.Queries(ev))
}

func (w *ExportWorker) write(ctx context.Context, qs []core.ReportQuery) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallel)
	for _, q := range qs {
		g.Go(func() error {
			rep, err := w.reports.Report(ctx, q)
			if err != nil {
				return fmt.Errorf("build report %s/%s: %w", q.Store, q.View, err)
			}
			if err := w.writer.WriteReport(ctx, rep); err != nil {
				return fmt.Errorf("write report %s/%s: %w", q.Store, q.View, err)
			}
			return nil
		})
	}
	return g.Wait()
}
