package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finsight/backend/src/models"
	"github.com/username/finsight/backend/src/processors"
	"github.com/username/finsight/backend/src/services"
	"github.com/username/finsight/backend/src/store"
)

const testJWTSecret = "test-secret"

func newTestRouter(t *testing.T) (*chi.Mux, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()

	detector := processors.NewIncomeDetector(processors.IncomeDetectorConfig{})
	incomeService := services.NewIncomeService(mem, detector, nil, 0)
	goalService := services.NewGoalService(mem, 0, decimal.Zero)

	incomeHandler := NewIncomeHandler(incomeService)
	goalHandler := NewGoalHandler(goalService)

	r := chi.NewRouter()
	r.Use(ContextualLoggerMiddleware)
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(testJWTSecret))

			r.Post("/income/detect", incomeHandler.HandleDetectIncome)
			r.Post("/income/manual", incomeHandler.HandleDeclareManualIncome)
			r.Get("/income/active", incomeHandler.HandleGetActiveIncome)

			r.Get("/goals", goalHandler.HandleListGoals)
			r.Post("/goals", goalHandler.HandleCreateGoal)
			r.Delete("/goals/{id}", goalHandler.HandleDeactivateGoal)
			r.Get("/goals/{id}/progress", goalHandler.HandleGetGoalProgress)
			r.Get("/goals/progress", goalHandler.HandleGetAllProgress)
		})
	})
	return r, mem
}

func signToken(t *testing.T, userID int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/goals", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRejectsForgedToken(t *testing.T) {
	router, _ := newTestRouter(t)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := forged.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/api/goals", signed, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndListGoals(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signToken(t, 1)

	rec := doRequest(t, router, http.MethodPost, "/api/goals", token, map[string]any{
		"name":           "Emergency fund",
		"target_amount":  "10000",
		"current_amount": "2500",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Goal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, int64(1), created.UserID)
	assert.True(t, created.IsActive)

	rec = doRequest(t, router, http.MethodGet, "/api/goals", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var goals []models.Goal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &goals))
	require.Len(t, goals, 1)
	assert.Equal(t, "Emergency fund", goals[0].Name)

	// Another user sees none of them.
	rec = doRequest(t, router, http.MethodGet, "/api/goals", signToken(t, 2), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	goals = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &goals))
	assert.Empty(t, goals)
}

func TestCreateGoalValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signToken(t, 1)

	rec := doRequest(t, router, http.MethodPost, "/api/goals", token, map[string]any{
		"name":          "",
		"target_amount": "10000",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/goals", token, map[string]any{
		"name":          "Bad target",
		"target_amount": "-5",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoalProgressEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signToken(t, 1)

	rec := doRequest(t, router, http.MethodPost, "/api/goals", token, map[string]any{
		"name":           "Vacation",
		"target_amount":  "10000",
		"current_amount": "2500",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Goal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	path := "/api/goals/" + strconv.FormatInt(created.ID, 10) + "/progress"
	rec = doRequest(t, router, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var progress models.GoalProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, created.ID, progress.GoalID)
	assert.InDelta(t, 25.0, progress.ProgressPercentage, 0.001)
	assert.True(t, progress.IsOnTrack)

	// Unknown goal and foreign goal map to 404 and 403.
	rec = doRequest(t, router, http.MethodGet, "/api/goals/999/progress", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, path, signToken(t, 2), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeactivateGoal(t *testing.T) {
	router, mem := newTestRouter(t)
	token := signToken(t, 1)

	rec := doRequest(t, router, http.MethodPost, "/api/goals", token, map[string]any{
		"name":          "Short lived",
		"target_amount": "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Goal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(t, router, http.MethodDelete, "/api/goals/"+strconv.FormatInt(created.ID, 10), token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, mem.Goals[created.ID].IsActive)
}

func TestManualIncomeRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signToken(t, 1)

	rec := doRequest(t, router, http.MethodPost, "/api/income/manual", token, map[string]any{
		"monthly_amount": "4000",
		"frequency":      "monthly",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var record models.RecurringIncomeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, models.IncomeSourceManual, record.Source)
	assert.True(t, record.MonthlyAmount.Equal(decimal.NewFromInt(4000)))

	rec = doRequest(t, router, http.MethodGet, "/api/income/active", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.RecurringIncomeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, models.IncomeStatusConfirmed, records[0].Status)
}

func TestManualIncomeRejectsNonPositive(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signToken(t, 1)

	rec := doRequest(t, router, http.MethodPost, "/api/income/manual", token, map[string]any{
		"monthly_amount": "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetectIncomeEndpoint(t *testing.T) {
	router, mem := newTestRouter(t)
	token := signToken(t, 1)

	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		mem.Transactions[1] = append(mem.Transactions[1], models.Transaction{
			ID:             "tx-" + strconv.Itoa(i),
			AccountID:      "acct-1",
			Amount:         decimal.NewFromInt(3000),
			Currency:       "USD",
			PostedDate:     start.AddDate(0, 0, i*30),
			MerchantName:   "ACME CORP",
			RawDescription: "ACME CORP PAYROLL",
			Category:       "Income",
		})
	}

	rec := doRequest(t, router, http.MethodPost, "/api/income/detect", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var outcome services.DetectionOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, models.IncomeStatusConfirmed, outcome.Status)
	assert.False(t, outcome.Skipped)
	assert.True(t, outcome.Result.MonthlyIncome.Equal(decimal.RequireFromString("3000.00")))

	// Second call finds the persisted record and skips detection.
	rec = doRequest(t, router, http.MethodPost, "/api/income/detect", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.True(t, outcome.Skipped)
}
