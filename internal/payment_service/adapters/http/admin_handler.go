package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/app"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

const (
	maxPerPage = 100
	dateLayout = "2006-01-02"
)

// AdminOperations is implemented by app.AdminService.
type AdminOperations interface {
	ListTransactions(ctx context.Context, f domain.TransactionFilter) (*app.TransactionPage, error)
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, transactionID string, status domain.Status, message *string) (*domain.Transaction, error)
	Report(ctx context.Context, f domain.TransactionFilter) (*app.Report, error)
}

type AdminHandler struct {
	admin    AdminOperations
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAdminHandler(admin AdminOperations, validate *validator.Validate, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, validate: validate, logger: logger.With("component", "admin_handler")}
}

type fieldErrors map[string][]string

func (e fieldErrors) add(field, msg string) { e[field] = append(e[field], msg) }

func (e fieldErrors) write(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnprocessableEntity, messageResponse{Success: false, Message: "The given data was invalid.", Errors: e})
}

// parseDate accepts a calendar day or an RFC 3339 timestamp. A bare end
// date covers the whole day.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func parseFilter(q url.Values, errs fieldErrors) domain.TransactionFilter {
	var f domain.TransactionFilter
	if raw := q.Get("provider"); raw != "" {
		p, err := domain.ParseProvider(raw)
		if err != nil {
			errs.add("provider", "The selected provider is invalid.")
		}
		f.Provider = p
	}
	if raw := q.Get("status"); raw != "" {
		s, err := domain.ParseStatus(raw)
		if err != nil {
			errs.add("status", "The selected status is invalid.")
		}
		f.Status = s
	}
	f.PhoneNumber = q.Get("phone_number")
	for _, d := range []struct {
		key      string
		endOfDay bool
		dst      **time.Time
	}{{"start_date", false, &f.From}, {"end_date", true, &f.To}} {
		raw := q.Get(d.key)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw, d.endOfDay)
		if err != nil {
			errs.add(d.key, "The "+d.key+" is not a valid date.")
			continue
		}
		*d.dst = t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		errs.add("end_date", "The end_date must be a date after or equal to start_date.")
	}
	for _, p := range []struct {
		key string
		dst *int
	}{{"page", &f.Page}, {"per_page", &f.PerPage}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errs.add(p.key, "The "+p.key+" must be a positive integer.")
			continue
		}
		*p.dst = n
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
	return f
}

// List handles GET /admin/mobile-wallet/transactions.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	errs := fieldErrors{}
	f := parseFilter(r.URL.Query(), errs)
	if len(errs) > 0 {
		errs.write(w)
		return
	}
	page, err := h.admin.ListTransactions(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Show handles GET /admin/mobile-wallet/transactions/{transactionId}.
func (h *AdminHandler) Show(w http.ResponseWriter, r *http.Request) {
	tx, err := h.admin.GetTransaction(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

// Update handles PUT /admin/mobile-wallet/transactions/{transactionId}.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	transactionID := chi.URLParam(r, "transactionId")

	var dto UpdateStatusDTO
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.StructCtx(ctx, dto); err != nil {
		writeValidation(w, err)
		return
	}
	status, _ := domain.ParseStatus(dto.Status)

	tx, err := h.admin.UpdateStatus(ctx, transactionID, status, dto.Message)
	if err != nil {
		logger.WarnContext(ctx, "Manual status update rejected", "transaction_id", transactionID, "status", status, "error", err)
		writeError(w, r, logger, err)
		return
	}
	if p, ok := PrincipalFromContext(ctx); ok {
		logger.InfoContext(ctx, "Transaction updated by admin", "transaction_id", transactionID, "status", tx.Status, "admin", p.Subject)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Transaction status updated successfully",
		"transaction": tx,
	})
}

// Report handles GET /admin/mobile-wallet/reports/transactions. format=csv
// streams the rows as an attachment; anything else returns JSON.
func (h *AdminHandler) Report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	errs := fieldErrors{}
	for _, key := range []string{"start_date", "end_date"} {
		if q.Get(key) == "" {
			errs.add(key, "The "+key+" field is required.")
		}
	}
	format := q.Get("format")
	if format != "" && format != "json" && format != "csv" {
		errs.add("format", "The selected format is invalid.")
	}
	f := parseFilter(q, errs)
	if len(errs) > 0 {
		errs.write(w)
		return
	}
	f.Page, f.PerPage = 0, 0

	report, err := h.admin.Report(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if format == "csv" {
		h.writeCSV(w, r, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

var csvHeader = []string{"Transaction ID", "Provider", "Provider Transaction ID", "Phone Number", "Amount", "Currency", "Status", "Created At", "Paid At", "Failed At"}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (h *AdminHandler) writeCSV(w http.ResponseWriter, r *http.Request, report *app.Report) {
	filename := fmt.Sprintf("mobile_wallet_report_%s_%s.csv", report.From.Format(dateLayout), report.To.Format(dateLayout))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	rows := [][]string{csvHeader}
	for _, tx := range report.Transactions {
		providerRef := ""
		if tx.ProviderTransactionID != nil {
			providerRef = *tx.ProviderTransactionID
		}
		created := tx.CreatedAt
		rows = append(rows, []string{
			tx.TransactionID, string(tx.Provider), providerRef, tx.PhoneNumber,
			tx.Amount.StringFixed(2), tx.Currency, string(tx.Status),
			formatTime(&created), formatTime(tx.PaidAt), formatTime(tx.FailedAt),
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to write CSV report", "error", err)
	}
}
