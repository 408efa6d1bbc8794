package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// WagerService is the slice of the service layer the wager handler needs.
type WagerService interface {
	PlaceWager(ctx context.Context, caller common.Address, marketID uint64, side domain.Side, amount *big.Int) (domain.Market, error)
}

// WagerHandler serves the wager placement endpoint.
type WagerHandler struct {
	wagers WagerService
	logger *slog.Logger
}

// NewWagerHandler creates a WagerHandler.
func NewWagerHandler(wagers WagerService, logger *slog.Logger) *WagerHandler {
	return &WagerHandler{
		wagers: wagers,
		logger: logHandler(logger, "wager"),
	}
}

// placeWagerRequest is the body for the wager endpoint. The amount is a
// base-10 integer string in the smallest currency unit.
type placeWagerRequest struct {
	Account string `json:"account"`
	Side    string `json:"side"`
	Amount  string `json:"amount"`
}

// PlaceWager stakes an amount on one side of a market and returns the
// updated market.
// POST /api/markets/{id}/wagers
func (h *WagerHandler) PlaceWager(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req placeWagerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAccount(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	side := domain.Side(req.Side)
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be \"yes\" or \"no\"")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	market, err := h.wagers.PlaceWager(r.Context(), caller, id, side, amount)
	if err != nil {
		if isDomainError(err) {
			writeDomainError(w, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "place wager failed",
			slog.Uint64("market_id", id),
			slog.String("account", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place wager")
		return
	}

	writeJSON(w, http.StatusCreated, market)
}
