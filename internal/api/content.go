package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/pkg/models"
)

// TransferRequest moves a content item to a new owner.
type TransferRequest struct {
	ContentID    string `json:"contentId"`
	CurrentOwner string `json:"currentOwner"`
	NewOwner     string `json:"newOwner"`
	PaymentTx    string `json:"paymentTx,omitempty"`
}

// ProofResponse wraps an ownership proof.
type ProofResponse struct {
	Success bool                   `json:"success"`
	Proof   *models.OwnershipProof `json:"proof"`
}

// TransferResponse carries the record after a transfer.
type TransferResponse struct {
	Success bool                  `json:"success"`
	Content *models.ContentRecord `json:"content"`
}

// GetContent returns a record with its provenance and metadata.
// (GET /api/content/{contentId})
func (s *Server) GetContent(c echo.Context, contentID string) error {
	details, err := s.svc.Registry().GetContentDetails(c.Request().Context(), contentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrContentNotFound) {
			return apperrors.New(apperrors.ErrContentNotFound, "Content not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, details)
}

// GetProof issues an ownership proof for the claimed owner.
// (GET /api/proof/{contentId}/{owner})
func (s *Server) GetProof(c echo.Context, contentID, owner string) error {
	proof, err := s.svc.Registry().GenerateOwnershipProof(c.Request().Context(), contentID, owner)
	if errors.Is(err, apperrors.ErrContentNotFound) || errors.Is(err, apperrors.ErrOwnershipMismatch) {
		return apperrors.New(apperrors.ErrContentNotFound, "Ownership proof not available")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ProofResponse{Success: true, Proof: proof})
}

// TransferContent hands a content item to a new owner.
// (POST /api/transfer)
func (s *Server) TransferContent(c echo.Context) error {
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.ContentID == "" || req.CurrentOwner == "" || req.NewOwner == "" {
		return apperrors.New(apperrors.ErrValidation, "Missing required fields: contentId, currentOwner, newOwner")
	}
	if err := authorize(c, req.CurrentOwner); err != nil {
		return err
	}

	record, err := s.svc.Registry().TransferOwnership(c.Request().Context(), req.ContentID, req.CurrentOwner, req.NewOwner, req.PaymentTx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TransferResponse{Success: true, Content: record})
}
