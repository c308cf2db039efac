package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/username/finsight/backend/src/logger"
	"github.com/username/finsight/backend/src/models"
	"github.com/username/finsight/backend/src/services"
	"github.com/username/finsight/backend/src/utils"
)

type GoalHandler struct {
	goalService *services.GoalService
}

func NewGoalHandler(goalService *services.GoalService) *GoalHandler {
	return &GoalHandler{goalService: goalService}
}

// statusForError maps the core error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrGoalNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrOwnership):
		return http.StatusForbidden
	case errors.Is(err, models.ErrPersistenceConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type goalRequest struct {
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	TargetDate    *time.Time      `json:"target_date,omitempty"`
	Priority      int             `json:"priority"`
}

func (h *GoalHandler) HandleCreateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	goal := models.Goal{
		Name:          req.Name,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    req.TargetDate,
		Priority:      req.Priority,
	}
	if err := h.goalService.CreateGoal(userID, &goal); err != nil {
		logger.FromContext(r.Context()).Error("Goal creation failed", "error", err)
		utils.SendJSONError(w, "Error creating goal", statusForError(err))
		return
	}
	utils.WriteJSON(w, http.StatusCreated, goal)
}

func (h *GoalHandler) HandleListGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	goals, err := h.goalService.GoalsForUser(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error listing goals", "error", err)
		utils.SendJSONError(w, "Error listing goals", http.StatusInternalServerError)
		return
	}
	if goals == nil {
		goals = []models.Goal{}
	}
	utils.WriteJSON(w, http.StatusOK, goals)
}

func (h *GoalHandler) HandleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	goalID, err := goalIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid goal id", http.StatusBadRequest)
		return
	}

	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	goal := models.Goal{
		ID:            goalID,
		Name:          req.Name,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    req.TargetDate,
		Priority:      req.Priority,
		IsActive:      true,
	}
	if err := h.goalService.UpdateGoal(userID, &goal); err != nil {
		logger.FromContext(r.Context()).Error("Goal update failed", "goalID", goalID, "error", err)
		utils.SendJSONError(w, "Error updating goal", statusForError(err))
		return
	}
	utils.WriteJSON(w, http.StatusOK, goal)
}

func (h *GoalHandler) HandleDeactivateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	goalID, err := goalIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid goal id", http.StatusBadRequest)
		return
	}

	if err := h.goalService.DeactivateGoal(userID, goalID); err != nil {
		logger.FromContext(r.Context()).Error("Goal deactivation failed", "goalID", goalID, "error", err)
		utils.SendJSONError(w, "Error deleting goal", statusForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkAccountRequest struct {
	AccountID          string          `json:"account_id"`
	AllocationFraction decimal.Decimal `json:"allocation_fraction"`
}

func (h *GoalHandler) HandleLinkAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	goalID, err := goalIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid goal id", http.StatusBadRequest)
		return
	}

	var req linkAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	link := models.GoalAccountLink{
		GoalID:             goalID,
		AccountID:          req.AccountID,
		AllocationFraction: req.AllocationFraction,
	}
	if err := h.goalService.LinkAccount(userID, link); err != nil {
		logger.FromContext(r.Context()).Error("Account link failed", "goalID", goalID, "error", err)
		utils.SendJSONError(w, "Error linking account", statusForError(err))
		return
	}
	utils.WriteJSON(w, http.StatusCreated, link)
}

func (h *GoalHandler) HandleGetGoalProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	goalID, err := goalIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid goal id", http.StatusBadRequest)
		return
	}

	progress, err := h.goalService.TrackGoalProgress(userID, goalID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error tracking goal progress", "goalID", goalID, "error", err)
		utils.SendJSONError(w, "Error tracking goal progress", statusForError(err))
		return
	}
	utils.WriteJSON(w, http.StatusOK, progress)
}

type allProgressResponse struct {
	Goals   []models.GoalProgress      `json:"goals"`
	Summary models.GoalProgressSummary `json:"summary"`
}

func (h *GoalHandler) HandleGetAllProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	progresses, summary, err := h.goalService.TrackAllGoalsProgress(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error tracking goals progress", "error", err)
		utils.SendJSONError(w, "Error tracking goals progress", statusForError(err))
		return
	}
	if progresses == nil {
		progresses = []models.GoalProgress{}
	}
	utils.WriteJSON(w, http.StatusOK, allProgressResponse{Goals: progresses, Summary: summary})
}

func (h *GoalHandler) HandleSyncGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := h.goalService.UpdateGoalProgressFromAccounts(userID); err != nil {
		logger.FromContext(r.Context()).Error("Goal sync failed", "error", err)
		utils.SendJSONError(w, "Error syncing goals", statusForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GoalHandler) HandleGetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	notifications, err := h.goalService.GenerateProgressNotifications(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error generating notifications", "error", err)
		utils.SendJSONError(w, "Error generating notifications", statusForError(err))
		return
	}
	if notifications == nil {
		notifications = []models.ProgressNotification{}
	}
	utils.WriteJSON(w, http.StatusOK, notifications)
}

func goalIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
