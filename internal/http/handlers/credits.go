package handlers

import (
	"net/http"

	"genstudio/internal/domain"
)

func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	balance, err := a.Jobs.Balance(r.Context(), ownerID)
	if err != nil {
		a.fail(w, r, err, "load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"owner_id": ownerID, "balance": balance})
}

// PriceList lists the default cost per kind.
func (a *App) PriceList(w http.ResponseWriter, r *http.Request) {
	costs := a.Pricing.Costs()
	a.json(w, http.StatusOK, map[string]int64{
		string(domain.JobKindImage): costs[domain.JobKindImage],
		string(domain.JobKindVideo): costs[domain.JobKindVideo],
		string(domain.JobKindCard):  costs[domain.JobKindCard],
	})
}
