package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// ResolveService is the slice of the service layer the resolve handler needs.
type ResolveService interface {
	Resolve(ctx context.Context, caller common.Address, marketID uint64, observed int64) (domain.Event, error)
}

// ResolveHandler serves the manual resolution endpoint. The background
// resolver handles the normal path; this endpoint lets the oracle operator
// resolve by hand with an explicit observed value.
type ResolveHandler struct {
	resolver ResolveService
	logger   *slog.Logger
}

// NewResolveHandler creates a ResolveHandler.
func NewResolveHandler(resolver ResolveService, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{
		resolver: resolver,
		logger:   logHandler(logger, "resolve"),
	}
}

type resolveRequest struct {
	Account  string `json:"account"`
	Observed int64  `json:"observed"`
}

// Resolve fixes the outcome of a market.
// POST /api/markets/{id}/resolve
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAccount(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.resolver.Resolve(r.Context(), caller, id, req.Observed)
	if err != nil {
		if isDomainError(err) {
			writeDomainError(w, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "resolve failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to resolve market")
		return
	}

	writeJSON(w, http.StatusOK, ev)
}
