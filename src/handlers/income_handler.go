package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/username/finsight/backend/src/logger"
	"github.com/username/finsight/backend/src/models"
	"github.com/username/finsight/backend/src/services"
	"github.com/username/finsight/backend/src/utils"
)

type IncomeHandler struct {
	incomeService *services.IncomeService
}

func NewIncomeHandler(incomeService *services.IncomeService) *IncomeHandler {
	return &IncomeHandler{incomeService: incomeService}
}

// HandleDetectIncome runs income detection for the authenticated user.
func (h *IncomeHandler) HandleDetectIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	logger.FromContext(r.Context()).Info("Handling income detection request")

	outcome, err := h.incomeService.DetectIncome(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Income detection failed", "error", err)
		utils.SendJSONError(w, "Error detecting income", statusForError(err))
		return
	}
	utils.WriteJSON(w, http.StatusOK, outcome)
}

// HandleConfirmIncome persists a previously surfaced detection.
func (h *IncomeHandler) HandleConfirmIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	record, err := h.incomeService.ConfirmDetectedIncome(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Income confirmation failed", "error", err)
		utils.SendJSONError(w, "Error confirming income", statusForError(err))
		return
	}
	utils.WriteJSON(w, http.StatusCreated, record)
}

type manualIncomeRequest struct {
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	Frequency     models.Cadence  `json:"frequency"`
}

// HandleDeclareManualIncome records user-entered income.
func (h *IncomeHandler) HandleDeclareManualIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req manualIncomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.incomeService.DeclareManualIncome(userID, req.MonthlyAmount, req.Frequency)
	if err != nil {
		logger.FromContext(r.Context()).Error("Manual income declaration failed", "error", err)
		utils.SendJSONError(w, "Error declaring income", statusForError(err))
		return
	}
	utils.WriteJSON(w, http.StatusCreated, record)
}

// HandleGetActiveIncome returns the user's active income records.
func (h *IncomeHandler) HandleGetActiveIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	records, err := h.incomeService.ActiveIncomeRecords(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error retrieving income records", "error", err)
		utils.SendJSONError(w, "Error retrieving income records", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.RecurringIncomeRecord{}
	}
	utils.WriteJSON(w, http.StatusOK, records)
}
