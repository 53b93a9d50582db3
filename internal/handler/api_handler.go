package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/service"

	"go.uber.org/zap"
)

// syncRequest is the body of POST ?action=sync.
type syncRequest struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// apiHandler dispatches the action-based transaction API.
func apiHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := r.URL.Query().Get("action")
		id := r.URL.Query().Get("id")

		switch r.Method {
		case http.MethodGet:
			if action != "get" {
				writeError(w, http.StatusBadRequest, "invalid action")
				return
			}
			list, err := ledger.List(r.Context())
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusOK, list)

		case http.MethodPost:
			switch action {
			case "add":
				var tx domain.Transaction
				if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
					writeError(w, http.StatusBadRequest, "invalid payload")
					return
				}
				created, err := ledger.Add(r.Context(), tx)
				if err != nil {
					handleServiceError(w, err, logger)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"success": true,
					"id":      created.ID,
					"data":    created,
				})

			case "sync":
				var req syncRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Transactions == nil {
					writeError(w, http.StatusBadRequest, "invalid payload")
					return
				}
				merged, err := ledger.Merge(r.Context(), req.Transactions)
				if err != nil {
					handleServiceError(w, err, logger)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"success": true,
					"data":    merged,
				})

			default:
				writeError(w, http.StatusBadRequest, "invalid action")
			}

		case http.MethodPut:
			if action != "update" || id == "" {
				writeError(w, http.StatusBadRequest, "invalid action or id")
				return
			}
			var patch domain.Patch
			if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
				writeError(w, http.StatusBadRequest, "invalid payload")
				return
			}
			updated, err := ledger.Update(r.Context(), id, patch)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"data":    updated,
			})

		case http.MethodDelete:
			if action != "delete" || id == "" {
				writeError(w, http.StatusBadRequest, "invalid action or id")
				return
			}
			if err := ledger.Delete(r.Context(), id); err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})

		default:
			writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		}
	}
}
