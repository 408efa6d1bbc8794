package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// PositionService is the slice of the service layer the position handler
// needs.
type PositionService interface {
	Positions(ctx context.Context, account common.Address) ([]domain.Position, error)
}

// PositionHandler serves position queries.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "position"),
	}
}

// ListPositions returns the open positions of one account across all
// markets.
// GET /api/positions?account=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount(r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := h.positions.Positions(r.Context(), account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed",
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":   account.Hex(),
		"positions": positions,
	})
}
