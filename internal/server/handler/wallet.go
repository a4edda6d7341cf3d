package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/hunch/internal/domain"
	"github.com/alanyoungcy/hunch/internal/wallet"
)

// WalletService defines the methods that the wallet handler requires.
type WalletService interface {
	Status(ctx context.Context, userID string) (domain.WalletStatus, error)
	Balance(ctx context.Context, userID string) (string, error)
	Approve(ctx context.Context, userID string) (domain.WalletStatus, error)
	Reset(ctx context.Context, userID string) (domain.WalletStatus, error)
	Submit(ctx context.Context, userID string, call wallet.Call) (wallet.OperationReceipt, error)
}

// WalletHandler serves the smart-account session endpoints.
type WalletHandler struct {
	wallets WalletService
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallets WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logger}
}

// GetStatus reports the user's wallet lifecycle.
// GET /api/wallet/status
func (h *WalletHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.wallets.Status(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to load wallet status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetBalance reports the owner's native balance.
// GET /api/wallet/balance
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.wallets.Balance(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to load balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": bal, "symbol": "ETH"})
}

// ApproveSession asks the owner to approve a new session key.
// POST /api/wallet/session
func (h *WalletHandler) ApproveSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.wallets.Approve(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to approve session key", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ResetSession removes the stored session key.
// DELETE /api/wallet/session
func (h *WalletHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.wallets.Reset(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to reset session key", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type operationRequest struct {
	To string `json:"to" validate:"required,eth_addr"`
	// Value is wei, as a decimal or 0x-prefixed hex string.
	Value string `json:"value"`
	Data  string `json:"data" validate:"omitempty,hexadecimal"`
}

func (req operationRequest) call() (wallet.Call, error) {
	c := wallet.Call{To: common.HexToAddress(req.To)}
	if req.Value != "" {
		v, ok := new(big.Int).SetString(req.Value, 0)
		if !ok || v.Sign() < 0 {
			return wallet.Call{}, fmt.Errorf("invalid field value: %q", req.Value)
		}
		c.Value = v
	}
	if req.Data != "" {
		data := req.Data
		if !strings.HasPrefix(data, "0x") {
			data = "0x" + data
		}
		b, err := hexutil.Decode(data)
		if err != nil {
			return wallet.Call{}, fmt.Errorf("invalid field data: %w", err)
		}
		c.Data = b
	}
	return c, nil
}

// SubmitOperation sends a call from the user's smart account.
// POST /api/wallet/operations
func (h *WalletHandler) SubmitOperation(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	call, err := req.call()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := h.wallets.Submit(r.Context(), userID(r), call)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to submit operation", err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}
