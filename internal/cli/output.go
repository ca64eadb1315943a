package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"presupuestos/internal/allocation"
	"presupuestos/internal/core"
	"presupuestos/internal/export"
)

// Exit codes for presupuestosctl.
const (
	ExitSuccess    = 0
	ExitFailure    = 1 // rejected by the engine: funds, overflow, not found
	ExitUsage      = 2 // invalid input or configuration
	ExitPersisting = 3
)

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch core.KindOf(err) {
	case core.KindValidation:
		return ExitUsage
	case core.KindPersistence:
		return ExitPersisting
	}
	return ExitFailure
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// table writes tab separated rows aligned in columns.
func table(w io.Writer, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

type stepOut struct {
	LineID int64  `json:"line_id"`
	Month  string `json:"month"`
	Amount string `json:"amount"`
}

type planOut struct {
	Line                string    `json:"line"`
	Store               string    `json:"store"`
	Month               string    `json:"month"`
	Requested           string    `json:"requested"`
	CumulativeAvailable string    `json:"cumulative_available"`
	AnnualAvailable     string    `json:"annual_available"`
	InRange             []stepOut `json:"in_range"`
	Overflow            *stepOut  `json:"overflow,omitempty"`
}

func stepOf(s core.DistributionStep) stepOut {
	return stepOut{LineID: s.LineID, Month: s.Month.Code(), Amount: export.Amount(s.Amount)}
}

func planOf(p allocation.Plan) planOut {
	out := planOut{
		Line:                p.Target.Name,
		Store:               p.Target.Store,
		Month:               p.Target.Month.Code(),
		Requested:           export.Amount(p.Requested),
		CumulativeAvailable: export.Amount(p.CumulativeAvailable),
		AnnualAvailable:     export.Amount(p.AnnualAvailable),
		InRange:             make([]stepOut, 0, len(p.InRange)),
	}
	for _, s := range p.InRange {
		out.InRange = append(out.InRange, stepOf(s))
	}
	if p.Overflow != nil {
		o := stepOf(*p.Overflow)
		out.Overflow = &o
	}
	return out
}

func planRows(p allocation.Plan) [][]string {
	rows := [][]string{{"Mes", "Monto", ""}}
	for _, s := range p.InRange {
		rows = append(rows, []string{s.Month.Code(), export.Amount(s.Amount), ""})
	}
	if p.Overflow != nil {
		rows = append(rows, []string{p.Overflow.Month.Code(), export.Amount(p.Overflow.Amount), "arrastre"})
	}
	return rows
}

type entryOut struct {
	GroupRef     string `json:"group_ref"`
	Date         string `json:"date"`
	Line         string `json:"line"`
	Store        string `json:"store"`
	Month        string `json:"month"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	CreatedBy    string `json:"created_by"`
	Receipt      string `json:"receipt,omitempty"`
	CarryForward bool   `json:"carry_forward"`
	Parts        int    `json:"parts"`
}

func entriesOf(entries []core.LedgerEntry) []entryOut {
	out := make([]entryOut, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryOut{
			GroupRef:     e.GroupRef,
			Date:         e.Date.String(),
			Line:         e.LineName,
			Store:        e.Store,
			Month:        e.Month.Code(),
			Description:  e.Description,
			Amount:       export.Amount(e.Amount),
			CreatedBy:    e.CreatedBy,
			Receipt:      e.Receipt,
			CarryForward: e.CarryForward,
			Parts:        e.Parts,
		})
	}
	return out
}

func entryRows(entries []core.LedgerEntry) [][]string {
	rows := [][]string{{"Fecha", "Línea", "Tienda/Sede", "Mes", "Descripción", "Monto", "Registrado por"}}
	for _, e := range entries {
		desc := e.Description
		if e.CarryForward {
			desc += " (arrastre)"
		}
		rows = append(rows, []string{e.Date.String(), e.LineName, e.Store, e.Month.Code(), desc, export.Amount(e.Amount), e.CreatedBy})
	}
	return rows
}
