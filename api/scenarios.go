/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	customers for demos and manual testing. Every scenario goes through
	Engine.AddCustomer, so its transactions are validated and scored like
	any other write.

AVAILABLE SCENARIOS:

	regular-shopper: Purchases in each of the last three months
	lapsed-customer: Only purchases older than the lookback window
	tier-tour:       One purchase per tier boundary in the current month
	year-boundary:   Purchases spread over the previous December and January

DATES:

	Dates are relative to the engine's "today", so a scenario always lands
	inside (or, for lapsed-customer, outside) the default window.

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load
	{"scenario_id": "regular-shopper"}

NOTE:

	Every customer ID of a scenario is checked before anything is written.
	If one already exists the load returns 409 and creates nothing.

SEE ALSO:
  - handlers.go: Error mapping
  - rewards/engine.go: AddCustomer
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rewards-engine/rewards"
)

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Customers   int    `json:"customers"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse lists the customers a scenario created.
type LoadScenarioResponse struct {
	Scenario  ScenarioDTO   `json:"scenario"`
	Customers []CustomerDTO `json:"customers"`
}

type scenario struct {
	ScenarioDTO
	build func(today time.Time) []rewards.Customer
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "regular-shopper",
			Name:        "Regular Shopper",
			Description: "Purchases in each of the last three months, one outside the window",
			Customers:   1,
		},
		build: regularShopper,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "lapsed-customer",
			Name:        "Lapsed Customer",
			Description: "Only purchases older than the default lookback (zero points)",
			Customers:   1,
		},
		build: lapsedCustomer,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "tier-tour",
			Name:        "Tier Tour",
			Description: "One purchase on each side of the 50 and 100 tier boundaries",
			Customers:   1,
		},
		build: tierTour,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "year-boundary",
			Name:        "Year Boundary",
			Description: "Two customers buying in December and January",
			Customers:   2,
		},
		build: yearBoundary,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario creates the customers of a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found", fmt.Sprintf("unknown scenario: %q", req.ScenarioID))
		return
	}

	created, err := h.loadScenario(r.Context(), s)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]CustomerDTO, len(created))
	for i, c := range created {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusCreated, LoadScenarioResponse{Scenario: s.ScenarioDTO, Customers: dtos})
}

// LoadScenarioByID creates the customers of a scenario outside of HTTP,
// e.g. to seed a demo server at startup.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	s, ok := findScenario(id)
	if !ok {
		return fmt.Errorf("unknown scenario: %q", id)
	}
	_, err := h.loadScenario(ctx, s)
	return err
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) ([]rewards.Customer, error) {
	customers := s.build(h.Engine.Today())
	for _, c := range customers {
		_, err := h.Engine.GetCustomer(ctx, c.ID)
		switch {
		case err == nil:
			return nil, fmt.Errorf("scenario %s: %w: %d", s.ID, rewards.ErrDuplicateCustomer, c.ID)
		case !rewards.IsNotFound(err):
			return nil, fmt.Errorf("scenario %s: %w", s.ID, err)
		}
	}

	var created []rewards.Customer
	for _, c := range customers {
		saved, err := h.Engine.AddCustomer(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.ID, err)
		}
		created = append(created, *saved)
	}

	h.Logger.InfoContext(ctx, "scenario loaded",
		"scenario", s.ID,
		"customers", len(created))
	return created, nil
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

func purchase(id int64, date time.Time, amount string) rewards.Transaction {
	return rewards.Transaction{
		ID:     rewards.TransactionID(id),
		Date:   date,
		Amount: decimal.RequireFromString(amount),
	}
}

// regularShopper earns 90 + 30 + 25 inside the window; the 4-months-old
// purchase is ignored by default queries.
func regularShopper(today time.Time) []rewards.Customer {
	return []rewards.Customer{{
		ID:   1001,
		Name: "Rita Regular",
		Transactions: []rewards.Transaction{
			purchase(1, rewards.AddMonths(today, -1), "120.00"),
			purchase(2, rewards.AddMonths(today, -2), "80.00"),
			purchase(3, today, "75.50"),
			purchase(4, rewards.AddMonths(today, -4), "300.00"),
		},
	}}
}

func lapsedCustomer(today time.Time) []rewards.Customer {
	return []rewards.Customer{{
		ID:   1002,
		Name: "Larry Lapsed",
		Transactions: []rewards.Transaction{
			purchase(1, rewards.AddMonths(today, -5), "210.00"),
			purchase(2, rewards.AddMonths(today, -7), "95.00"),
		},
	}}
}

func tierTour(today time.Time) []rewards.Customer {
	return []rewards.Customer{{
		ID:   1003,
		Name: "Tina Tiers",
		Transactions: []rewards.Transaction{
			purchase(1, today, "50.00"),
			purchase(2, today, "50.99"),
			purchase(3, today, "51.00"),
			purchase(4, today, "100.00"),
			purchase(5, today, "101.00"),
			purchase(6, today, "120.99"),
		},
	}}
}

// yearBoundary uses the last December and January on or before today.
func yearBoundary(today time.Time) []rewards.Customer {
	year := today.Year()
	december := rewards.NewDate(year-1, time.December, 20)
	january := rewards.NewDate(year, time.January, 10)
	if january.After(today) {
		december = december.AddDate(-1, 0, 0)
		january = january.AddDate(-1, 0, 0)
	}

	return []rewards.Customer{
		{
			ID:   1004,
			Name: "Yara Year",
			Transactions: []rewards.Transaction{
				purchase(1, december, "130.00"),
				purchase(2, january, "60.00"),
			},
		},
		{
			ID:   1005,
			Name: "Nico New-Year",
			Transactions: []rewards.Transaction{
				purchase(1, january, "250.00"),
			},
		},
	}
}
