package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"presupuestos/internal/core"
	"presupuestos/internal/ledger"
	"presupuestos/internal/services"
)

// UserHeader carries the id of the user authenticated by the upstream proxy.
const UserHeader = "X-Authenticated-User"

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = 16 << 20
	multipartMemory  = 4 << 20
)

// ScopeParams are the store, year, view and month a request asks for.
type ScopeParams struct {
	Store string
	Year  int
	View  core.View
	Month core.Month
}

// ParseScopeParams reads store, year, view and month from the query.
// Missing values fall back to fiscalYear, the monthly view and the
// current month.
func ParseScopeParams(query url.Values, fiscalYear int) (ScopeParams, error) {
	p := ScopeParams{
		Store: strings.TrimSpace(query.Get("store")),
		Year:  fiscalYear,
		View:  core.Monthly,
		Month: core.Month(time.Now().Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 2000 || y > 2100 {
			return ScopeParams{}, core.Failf(core.KindValidation, "invalid year %q", v)
		}
		p.Year = y
	}
	if v := strings.TrimSpace(query.Get("view")); v != "" {
		view, err := parseView(v)
		if err != nil {
			return ScopeParams{}, err
		}
		p.View = view
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			return ScopeParams{}, core.Invalid(err)
		}
		p.Month = m
	}
	return p, nil
}

func parseView(v string) (core.View, error) {
	switch core.Fold(v) {
	case "mensual", "monthly":
		return core.Monthly, nil
	case "anual", "annual":
		return core.Annual, nil
	}
	return "", core.Failf(core.KindValidation, "unknown view %q", v)
}

// parseBool accepts the usual form spellings; anything else is false.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes", "si", "sí":
		return true
	}
	return false
}

func parseLimit(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, core.Failf(core.KindValidation, "invalid limit %q", v)
	}
	return n, nil
}

// expenseForm is the JSON shape of an expense request.
type expenseForm struct {
	LineID          int64  `json:"line_id"`
	Amount          string `json:"amount"`
	Description     string `json:"description"`
	Date            string `json:"date"`
	ConfirmOverflow bool   `json:"confirm_overflow"`
	NoOverflow      bool   `json:"no_overflow"`
}

func (f expenseForm) request(user string) (ledger.Request, error) {
	req := ledger.Request{
		LineID:          f.LineID,
		Description:     sanitizeInput(f.Description),
		RequestedBy:     user,
		ConfirmOverflow: f.ConfirmOverflow,
		NoOverflow:      f.NoOverflow,
	}
	cents, err := core.ParseDecimalToCents(f.Amount)
	if err != nil {
		return ledger.Request{}, core.Invalid(err)
	}
	req.Amount = core.Money{Cents: cents}

	if strings.TrimSpace(f.Date) == "" {
		now := time.Now()
		req.Date = core.NewDate(now.Year(), int(now.Month()), now.Day())
	} else {
		d, err := core.ParseDate(f.Date)
		if err != nil {
			return ledger.Request{}, core.Failf(core.KindValidation, "invalid date %q", f.Date)
		}
		req.Date = d
	}
	return req, nil
}

func formFromValues(v url.Values) (expenseForm, error) {
	f := expenseForm{
		Amount:          v.Get("amount"),
		Description:     v.Get("description"),
		Date:            v.Get("date"),
		ConfirmOverflow: parseBool(v.Get("confirm_overflow")),
		NoOverflow:      parseBool(v.Get("no_overflow")),
	}
	if id := strings.TrimSpace(v.Get("line_id")); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return expenseForm{}, core.Failf(core.KindValidation, "invalid line_id %q", id)
		}
		f.LineID = n
	}
	return f, nil
}

// ParseExpenseRequest reads an expense from a JSON, urlencoded or multipart
// body. A multipart "receipt" file part is returned as the receipt; the
// caller must close it.
func ParseExpenseRequest(w http.ResponseWriter, r *http.Request, user string) (ledger.Request, *services.Receipt, io.Closer, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		form    expenseForm
		receipt *services.Receipt
		closer  io.Closer
		err     error
	)
	switch mediaType {
	case "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&form); err != nil {
			return ledger.Request{}, nil, nil, core.Failf(core.KindValidation, "malformed JSON body: %v", err)
		}
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return ledger.Request{}, nil, nil, core.Failf(core.KindValidation, "malformed multipart body: %v", err)
		}
		if form, err = formFromValues(r.MultipartForm.Value); err != nil {
			return ledger.Request{}, nil, nil, err
		}
		file, header, ferr := r.FormFile("receipt")
		switch {
		case ferr == nil:
			ct := header.Header.Get("Content-Type")
			if ct == "" {
				ct = "application/octet-stream"
			}
			receipt = &services.Receipt{Filename: header.Filename, ContentType: ct, Body: file}
			closer = file
		case !errors.Is(ferr, http.ErrMissingFile):
			return ledger.Request{}, nil, nil, fmt.Errorf("read receipt part: %w", ferr)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return ledger.Request{}, nil, nil, core.Failf(core.KindValidation, "malformed form body: %v", err)
		}
		if form, err = formFromValues(r.PostForm); err != nil {
			return ledger.Request{}, nil, nil, err
		}
	}

	req, err := form.request(user)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return ledger.Request{}, nil, nil, err
	}
	return req, receipt, closer, nil
}

// sanitizeInput removes control characters except tab and newlines and trims
// whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
