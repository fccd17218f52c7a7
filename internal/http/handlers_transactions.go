package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"budget/internal/core"
	"budget/internal/ledger"
	applog "budget/internal/log"
	"budget/internal/services"
)

// statusFor maps a Record error to an HTTP status
func statusFor(err error) int {
	switch {
	case services.IsInputError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	logger := applog.FromContext(r.Context())

	input, err := ParseTransactionInput(r)
	if err != nil {
		logger.WarnContext(r.Context(), "Parse form error", applog.FieldError, err)
		BadRequestError("Invalid request format.").Write(w)
		return
	}

	tx, _, err := s.service.Record(r.Context(), input.Amount, input.Description, input.Kind)
	s.recordOutcome(err)
	if err != nil {
		status := statusFor(err)
		fields := applog.NewFields().
			WithOperation(applog.OpRecord).
			WithError(err)
		if status >= http.StatusInternalServerError {
			logger.Fields(r.Context(), slog.LevelError, "Transaction recording failed", fields)
		} else {
			logger.Fields(r.Context(), slog.LevelInfo, "Transaction rejected", fields)
		}
		ErrorResponse(status, services.UserMessage(err)).
			TriggerErrorNotification(services.UserMessage(err)).
			Write(w)
		return
	}

	logger.Fields(r.Context(), slog.LevelInfo, "Transaction recorded", applog.NewFields().
		WithOperation(applog.OpRecord).
		WithTransaction(tx.ID, tx.Amount.String(), tx.Kind.String(), tx.Description))

	message := fmt.Sprintf("Recorded %s of %s", tx.Kind, core.FormatAmount(tx.Amount))
	NewHTMXResponse().
		TriggerTransactionRecorded(tx.ID, tx.Kind.String()).
		TriggerBalancesRefresh().
		TriggerFormReset().
		TriggerSuccessNotification(message).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(fmt.Sprintf("%s (#%d)", message, tx.ID)) + `</div>`).
		Write(w)
}

func (s *Server) handleBalancesPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	balances, err := s.service.Balances()
	if err != nil {
		ServiceUnavailableError(services.UserMessage(err)).Write(w)
		return
	}
	s.renderPartial(w, r, "balances", newBalancesView(balances))
}

func (s *Server) handleHistoryPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	history, _, err := s.service.Snapshot()
	if err != nil {
		ServiceUnavailableError(services.UserMessage(err)).Write(w)
		return
	}
	s.renderPartial(w, r, "history", newTransactionViews(history))
}

func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	if s.templates == nil {
		InternalServerError("Templates not loaded.").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution error",
			applog.FieldError, err, "template", name)
	}
}

func (s *Server) handleAPIBalances(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	balances, err := s.service.Balances()
	if err != nil {
		writeJSONError(w, statusFor(err), services.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, toBalancesJSON(balances))
}

// handleAPITransactions lists the history on GET and records on POST
func (s *Server) handleAPITransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		history, _, err := s.service.Snapshot()
		if err != nil {
			writeJSONError(w, statusFor(err), services.UserMessage(err))
			return
		}
		out := make([]transactionJSON, 0, len(history))
		for _, tx := range history {
			out = append(out, toTransactionJSON(tx))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		input, err := ParseTransactionInput(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid request format.")
			return
		}
		tx, balances, err := s.service.Record(r.Context(), input.Amount, input.Description, input.Kind)
		s.recordOutcome(err)
		if err != nil {
			if statusFor(err) >= http.StatusInternalServerError {
				applog.FromContext(r.Context()).ErrorContext(r.Context(), "Transaction recording failed",
					applog.FieldOperation, applog.OpRecord, applog.FieldError, err)
			}
			writeJSONError(w, statusFor(err), services.UserMessage(err))
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			Transaction transactionJSON `json:"transaction"`
			Balances    balancesJSON    `json:"balances"`
		}{toTransactionJSON(tx), toBalancesJSON(balances)})

	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
