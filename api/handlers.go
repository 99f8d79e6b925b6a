/*
handlers.go - HTTP API handlers for the rewards engine

PURPOSE:
  Exposes the rewards engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to rewards.Engine.

ENDPOINTS:
  Rewards:
    POST   /api/rewards                     Rewards for a customer in the body
    POST   /api/rewards/bulk                Rewards for a list of customers

  Customers:
    GET    /api/customers                   List stored customers
    POST   /api/customers                   Create customer
    GET    /api/customers/{id}              Get customer
    GET    /api/customers/{id}/rewards      Rewards for a stored customer
    POST   /api/customers/{id}/transactions Append a transaction

  Scenarios (scenarios.go):
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Create a scenario's customers

  Every rewards endpoint accepts optional ?start=YYYY-MM-DD&end=YYYY-MM-DD.
  Without them the configured lookback (default 3 months) ending today is used.

DATES:
  "Today" is the calendar day in the server's TIMEZONE (default UTC). A
  caller in another zone can see the future-date cutoff move at their
  local evening or morning; set TIMEZONE to the business's zone.

BULK REQUESTS:
  Each customer settles on its own. A customer that fails to parse or
  validate gets an "error" entry; the others still get "rewards". Only an
  empty list or an invalid range rejects the whole request.

REQUEST FLOW:
  1. Parse HTTP request (JSON body, path id, query dates)
  2. Call the engine (validation happens there)
  3. Serialize response
  4. Map errors to statuses

CONCURRENCY:
  net/http already serves each request on its own goroutine, so the
  handlers call the engine synchronously. Bulk requests fan out inside
  the engine.

ERROR HANDLING:
  Errors are returned as JSON {timestamp, status, error, message}:
  - 400: Validation errors, malformed JSON, bad dates, empty bulk list
  - 404: Customer not found
  - 409: Duplicate customer
  - 500: Internal errors (details logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/rewards-engine/rewards"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *rewards.Engine
	Logger *slog.Logger
}

// NewHandler creates a new handler around engine.
func NewHandler(engine *rewards.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Engine: engine, Logger: logger}
}

// =============================================================================
// REWARD HANDLERS
// =============================================================================

// CalculateRewards computes rewards for the customer in the request body.
// POST /api/rewards
func (h *Handler) CalculateRewards(w http.ResponseWriter, r *http.Request) {
	rng, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	var req CustomerRequest
	if !h.decode(w, r, &req) {
		return
	}
	customer, err := req.toDomain("")
	if err != nil {
		h.writeRequestError(w, err)
		return
	}

	resp, err := h.Engine.Compute(r.Context(), &customer, rng)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardResponseDTO(resp))
}

// CalculateBulkRewards computes rewards for every customer in the body.
// POST /api/rewards/bulk
func (h *Handler) CalculateBulkRewards(w http.ResponseWriter, r *http.Request) {
	rng, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	var reqs []CustomerRequest
	if !h.decode(w, r, &reqs) {
		return
	}
	if len(reqs) == 0 {
		_, err := h.Engine.ComputeBulk(r.Context(), nil, rng)
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := h.Engine.ResolveWindow(rng); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	// Entries that fail to parse get their error here; the rest go to the
	// engine and are merged back by position.
	out := BulkRewardResponse{Customers: make([]BulkEntryDTO, len(reqs))}
	customers := make([]rewards.Customer, 0, len(reqs))
	positions := make([]int, 0, len(reqs))
	for i, req := range reqs {
		out.Customers[i].CustomerID = req.CustomerID
		c, err := req.toDomain(fmt.Sprintf("customers[%d].", i))
		if err != nil {
			status, title := requestErrorStatus(err)
			e := newErrorResponse(status, title, err.Error())
			out.Customers[i].Error = &e
			continue
		}
		customers = append(customers, c)
		positions = append(positions, i)
	}

	if len(customers) > 0 {
		results, err := h.Engine.ComputeBulk(r.Context(), customers, rng)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		for j, res := range results {
			entry := &out.Customers[positions[j]]
			if res.Err != nil {
				status, title := statusFor(res.Err)
				e := newErrorResponse(status, title, messageFor(status, res.Err))
				entry.Error = &e
				continue
			}
			entry.Rewards = toRewardResponseDTO(res.Response)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCustomerRewards computes rewards for a stored customer.
// GET /api/customers/{id}/rewards
func (h *Handler) GetCustomerRewards(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	rng, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	resp, err := h.Engine.ComputeForCustomer(r.Context(), id, rng)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardResponseDTO(resp))
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns all stored customers.
// GET /api/customers
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Engine.ListCustomers(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCustomer stores a new customer with scored transactions.
// POST /api/customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if !h.decode(w, r, &req) {
		return
	}
	customer, err := req.toDomain("")
	if err != nil {
		h.writeRequestError(w, err)
		return
	}

	saved, err := h.Engine.AddCustomer(r.Context(), customer)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(*saved))
}

// GetCustomer returns one stored customer.
// GET /api/customers/{id}
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	customer, err := h.Engine.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*customer))
}

// AddTransaction appends a transaction to a stored customer.
// POST /api/customers/{id}/transactions
func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req TransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := req.toDomain("")
	if err != nil {
		// A missing customer is reported ahead of a bad transaction body.
		if _, lookupErr := h.Engine.GetCustomer(r.Context(), id); lookupErr != nil {
			h.writeDomainError(w, r, lookupErr)
			return
		}
		h.writeRequestError(w, err)
		return
	}

	updated, err := h.Engine.AddTransaction(r.Context(), id, tx)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*updated))
}

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed JSON", "Invalid request format or data")
		return false
	}
	return true
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (rewards.CustomerID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid parameter", "Incorrect type: id")
		return 0, false
	}
	return rewards.CustomerID(id), true
}

func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (rewards.RangeRequest, bool) {
	var rng rewards.RangeRequest
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"start", &rng.Start},
		{"end", &rng.End},
	} {
		t, err := parseDate(p.name, q.Get(p.name))
		if err != nil {
			h.writeRequestError(w, err)
			return rng, false
		}
		if !t.IsZero() {
			*p.dst = &t
		}
	}
	return rng, true
}

// writeRequestError reports a problem found before reaching the engine.
func (h *Handler) writeRequestError(w http.ResponseWriter, err error) {
	status, title := requestErrorStatus(err)
	writeError(w, status, title, err.Error())
}

func requestErrorStatus(err error) (int, string) {
	var bad *errBadDate
	if errors.As(err, &bad) {
		return http.StatusBadRequest, "Invalid date format"
	}
	return http.StatusBadRequest, "Invalid input"
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	writeError(w, status, title, messageFor(status, err))
}

func statusFor(err error) (int, string) {
	switch {
	case rewards.IsNotFound(err):
		return http.StatusNotFound, "Not Found"
	case rewards.IsConflict(err):
		return http.StatusConflict, "Conflict"
	case rewards.IsClientError(err):
		return http.StatusBadRequest, "Invalid input"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func messageFor(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "An unexpected error occurred"
	}
	return err.Error()
}

func newErrorResponse(status int, title, message string) ErrorResponse {
	return ErrorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     title,
		Message:   message,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, title, message string) {
	writeJSON(w, status, newErrorResponse(status, title, message))
}
