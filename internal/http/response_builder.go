package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"presupuestos/internal/allocation"
	"presupuestos/internal/core"
	"presupuestos/internal/export"
	"presupuestos/internal/ledger"
	"presupuestos/internal/services"
)

// JSONResponse builds a JSON reply with a fluent API.
type JSONResponse struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewJSONResponse() *JSONResponse {
	return &JSONResponse{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponse) Status(code int) *JSONResponse {
	b.statusCode = code
	return b
}

func (b *JSONResponse) Header(name, value string) *JSONResponse {
	b.headers[name] = value
	return b
}

func (b *JSONResponse) Body(v any) *JSONResponse {
	b.body = v
	return b
}

func (b *JSONResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

// errorBody is the JSON shape of every failure.
type errorBody struct {
	Kind   core.Kind `json:"kind"`
	Reason string    `json:"reason"`
	Plan   *planDTO  `json:"plan,omitempty"`
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindInsufficientFunds, core.KindNoOverflowTarget:
		return http.StatusUnprocessableEntity
	case core.KindOverflowConfirmation:
		return http.StatusConflict
	case core.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ErrorResponse renders err. Persistence and untyped failures are logged
// and their details withheld from the client.
func ErrorResponse(r *http.Request, err error) *JSONResponse {
	kind := core.KindOf(err)
	status := StatusFor(kind)
	body := errorBody{Kind: kind, Reason: reasonOf(err)}
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		if kind == "" {
			body.Kind = core.KindPersistence
		}
		body.Reason = "internal error"
	}
	return NewJSONResponse().Status(status).Body(body)
}

// OverflowConfirmationResponse asks the client to confirm a carry-forward.
func OverflowConfirmationResponse(err error, plan allocation.Plan) *JSONResponse {
	body := errorBody{Kind: core.KindOverflowConfirmation, Reason: reasonOf(err)}
	p := planOf(plan)
	body.Plan = &p
	return NewJSONResponse().Status(http.StatusConflict).Body(body)
}

// reasonOf prefers the typed reason over the full wrapped message.
func reasonOf(err error) string {
	var ke *core.Error
	if errors.As(err, &ke) && ke.Reason != "" {
		return ke.Reason
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponse(r, err).Write(w)
}

type stepDTO struct {
	LineID int64  `json:"line_id"`
	Month  string `json:"month"`
	Amount string `json:"amount"`
}

func stepOf(s core.DistributionStep) stepDTO {
	return stepDTO{LineID: s.LineID, Month: s.Month.Code(), Amount: export.Amount(s.Amount)}
}

type planDTO struct {
	LineID              int64     `json:"line_id"`
	Line                string    `json:"line"`
	Store               string    `json:"store"`
	Month               string    `json:"month"`
	Requested           string    `json:"requested"`
	CumulativeAvailable string    `json:"cumulative_available"`
	AnnualAvailable     string    `json:"annual_available"`
	InRange             []stepDTO `json:"in_range"`
	Overflow            *stepDTO  `json:"overflow,omitempty"`
}

func planOf(p allocation.Plan) planDTO {
	dto := planDTO{
		LineID:              p.Target.ID,
		Line:                p.Target.Name,
		Store:               p.Target.Store,
		Month:               p.Target.Month.Code(),
		Requested:           export.Amount(p.Requested),
		CumulativeAvailable: export.Amount(p.CumulativeAvailable),
		AnnualAvailable:     export.Amount(p.AnnualAvailable),
		InRange:             make([]stepDTO, 0, len(p.InRange)),
	}
	for _, s := range p.InRange {
		dto.InRange = append(dto.InRange, stepOf(s))
	}
	if p.Overflow != nil {
		o := stepOf(*p.Overflow)
		dto.Overflow = &o
	}
	return dto
}

type lineDTO struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Store          string `json:"store"`
	Year           int    `json:"year"`
	Month          string `json:"month"`
	Category       string `json:"category"`
	Initial        string `json:"initial"`
	Current        string `json:"current"`
	Spent          string `json:"spent"`
	CarryForward   bool   `json:"carry_forward"`
	OverflowAmount string `json:"overflow_amount,omitempty"`
	OverflowTarget string `json:"overflow_target,omitempty"`
}

func lineOf(l core.BudgetLine, eligible bool) lineDTO {
	dto := lineDTO{
		ID:           l.ID,
		Name:         l.Name,
		Store:        l.Store,
		Year:         l.Year,
		Month:        l.Month.Code(),
		Category:     string(l.Category),
		Initial:      export.Amount(l.Initial),
		Current:      export.Amount(l.Current),
		Spent:        export.Amount(l.Spent()),
		CarryForward: eligible,
	}
	if l.OverflowTarget.Valid() {
		dto.OverflowAmount = export.Amount(l.OverflowAmount)
		dto.OverflowTarget = l.OverflowTarget.Code()
	}
	return dto
}

type recordDTO struct {
	ID         string `json:"id"`
	LineID     int64  `json:"line_id"`
	Line       string `json:"line"`
	Store      string `json:"store"`
	Month      string `json:"month"`
	Amount     string `json:"amount"`
	IsOverflow bool   `json:"is_overflow"`
	CreatedBy  string `json:"created_by"`
}

type postedDTO struct {
	GroupRef string      `json:"group_ref"`
	Receipt  string      `json:"receipt,omitempty"`
	Plan     planDTO     `json:"plan"`
	Records  []recordDTO `json:"records"`
}

func postedOf(res ledger.Result) postedDTO {
	dto := postedDTO{GroupRef: res.GroupRef, Plan: planOf(res.Plan), Records: make([]recordDTO, 0, len(res.Records))}
	for _, rec := range res.Records {
		if dto.Receipt == "" {
			dto.Receipt = rec.Receipt
		}
		dto.Records = append(dto.Records, recordDTO{
			ID:         rec.ID,
			LineID:     rec.LineID,
			Line:       rec.LineName,
			Store:      rec.Store,
			Month:      rec.Month.Code(),
			Amount:     export.Amount(rec.Amount),
			IsOverflow: rec.IsOverflow,
			CreatedBy:  rec.CreatedBy,
		})
	}
	return dto
}

type queryDTO struct {
	Year        int    `json:"year"`
	Store       string `json:"store"`
	View        string `json:"view"`
	Month       string `json:"month,omitempty"`
	Consolidate bool   `json:"consolidate"`
}

func queryOf(q core.ReportQuery) queryDTO {
	dto := queryDTO{Year: q.Year, Store: q.Store, View: string(q.View), Consolidate: q.Consolidate}
	if q.View == core.Monthly {
		dto.Month = q.Month.Code()
	}
	return dto
}

type rankingDTO struct {
	Name    string `json:"name"`
	Store   string `json:"store,omitempty"`
	Initial string `json:"initial"`
	Spent   string `json:"spent"`
	Current string `json:"current"`
}

type categoryDTO struct {
	Category string `json:"category"`
	Initial  string `json:"initial"`
	Spent    string `json:"spent"`
	Current  string `json:"current"`
}

type totalsDTO struct {
	Initial         string  `json:"initial"`
	Spent           string  `json:"spent"`
	Current         string  `json:"current"`
	PercentConsumed float64 `json:"percent_consumed"`
}

type entryDTO struct {
	GroupRef     string `json:"group_ref"`
	Line         string `json:"line"`
	Store        string `json:"store"`
	Month        string `json:"month"`
	Date         string `json:"date"`
	Description  string `json:"description"`
	CreatedBy    string `json:"created_by"`
	Receipt      string `json:"receipt,omitempty"`
	Amount       string `json:"amount"`
	CarryForward bool   `json:"carry_forward"`
	Parts        int    `json:"parts"`
}

func entriesOf(entries []core.LedgerEntry) []entryDTO {
	out := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryDTO{
			GroupRef:     e.GroupRef,
			Line:         e.LineName,
			Store:        e.Store,
			Month:        e.Month.Code(),
			Date:         e.Date.String(),
			Description:  e.Description,
			CreatedBy:    e.CreatedBy,
			Receipt:      e.Receipt,
			Amount:       export.Amount(e.Amount),
			CarryForward: e.CarryForward,
			Parts:        e.Parts,
		})
	}
	return out
}

type reportDTO struct {
	Query      queryDTO      `json:"query"`
	Totals     totalsDTO     `json:"totals"`
	Ranking    []rankingDTO  `json:"ranking"`
	Categories []categoryDTO `json:"categories"`
	Ledger     []entryDTO    `json:"ledger"`
}

func reportOf(rep core.Report) reportDTO {
	dto := reportDTO{
		Query: queryOf(rep.Query),
		Totals: totalsDTO{
			Initial:         export.Amount(rep.Totals.Initial),
			Spent:           export.Amount(rep.Totals.Spent),
			Current:         export.Amount(rep.Totals.Current),
			PercentConsumed: rep.Totals.PercentConsumed,
		},
		Ranking:    make([]rankingDTO, 0, len(rep.Ranking)),
		Categories: make([]categoryDTO, 0, len(rep.Categories)),
		Ledger:     entriesOf(rep.Ledger),
	}
	for _, r := range rep.Ranking {
		dto.Ranking = append(dto.Ranking, rankingDTO{
			Name:    r.Name,
			Store:   r.Store,
			Initial: export.Amount(r.Initial),
			Spent:   export.Amount(r.Spent()),
			Current: export.Amount(r.Current),
		})
	}
	for _, c := range rep.Categories {
		dto.Categories = append(dto.Categories, categoryDTO{
			Category: string(c.Category),
			Initial:  export.Amount(c.Initial),
			Spent:    export.Amount(c.Spent),
			Current:  export.Amount(c.Current),
		})
	}
	return dto
}

type issueDTO struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type importDTO struct {
	Rows     int        `json:"rows"`
	Lines    int        `json:"lines"`
	Replaced int        `json:"replaced"`
	Skipped  []issueDTO `json:"skipped"`
	Rejected []issueDTO `json:"rejected"`
}

func importOf(rep services.ImportReport) importDTO {
	dto := importDTO{
		Rows:     rep.Rows,
		Lines:    len(rep.Lines),
		Replaced: rep.Replaced,
		Skipped:  make([]issueDTO, 0, len(rep.Skipped)),
		Rejected: make([]issueDTO, 0, len(rep.Rejected)),
	}
	for _, is := range rep.Skipped {
		dto.Skipped = append(dto.Skipped, issueDTO{Row: is.Row, Reason: is.Reason})
	}
	for _, is := range rep.Rejected {
		dto.Rejected = append(dto.Rejected, issueDTO{Row: is.Row, Reason: is.Reason})
	}
	return dto
}
