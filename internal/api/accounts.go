package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/pkg/models"
)

// AddFundsRequest credits a user's balance. Amount is in major units.
type AddFundsRequest struct {
	UserID string       `json:"userId"`
	Amount models.Money `json:"amount"`
}

// AddFundsResponse reports the balance after the credit.
type AddFundsResponse struct {
	Success    bool         `json:"success"`
	NewBalance models.Money `json:"newBalance"`
}

// GetDashboard returns the user's balance, content and spending.
// (GET /api/dashboard/{userId})
func (s *Server) GetDashboard(c echo.Context, userID string) error {
	if err := authorize(c, userID); err != nil {
		return err
	}
	dashboard, err := s.svc.Dashboard(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dashboard)
}

// AddFunds credits a user's balance.
// (POST /api/add-funds)
func (s *Server) AddFunds(c echo.Context) error {
	var req AddFundsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.UserID == "" {
		return apperrors.New(apperrors.ErrValidation, "userId is required")
	}
	if err := authorize(c, req.UserID); err != nil {
		return err
	}

	balance, err := s.svc.Ledger().AddFunds(c.Request().Context(), req.UserID, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AddFundsResponse{Success: true, NewBalance: balance})
}
