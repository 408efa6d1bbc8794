package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// RedeemService is the slice of the service layer the redeem handler needs.
type RedeemService interface {
	Redeem(ctx context.Context, caller common.Address, marketID uint64) (*big.Int, error)
}

// RedeemHandler serves the payout endpoint.
type RedeemHandler struct {
	redeemer RedeemService
	logger   *slog.Logger
}

// NewRedeemHandler creates a RedeemHandler.
func NewRedeemHandler(redeemer RedeemService, logger *slog.Logger) *RedeemHandler {
	return &RedeemHandler{
		redeemer: redeemer,
		logger:   logHandler(logger, "redeem"),
	}
}

type redeemRequest struct {
	Account string `json:"account"`
}

type redeemResponse struct {
	MarketID uint64 `json:"market_id"`
	Account  string `json:"account"`
	Payout   string `json:"payout"`
}

// Redeem pays out the caller's winning position.
// POST /api/markets/{id}/redeem
func (h *RedeemHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req redeemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAccount(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payout, err := h.redeemer.Redeem(r.Context(), caller, id)
	if err != nil {
		if isDomainError(err) {
			writeDomainError(w, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "redeem failed",
			slog.Uint64("market_id", id),
			slog.String("account", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to redeem")
		return
	}

	writeJSON(w, http.StatusOK, redeemResponse{
		MarketID: id,
		Account:  caller.Hex(),
		Payout:   payout.String(),
	})
}
