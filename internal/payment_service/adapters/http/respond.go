package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

const MaxRequestBodySize = 1 << 20 // 1 MB

type messageResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Success: false, Message: message})
}

func writeValidation(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, messageResponse{
		Success: false,
		Message: "The given data was invalid.",
		Errors:  validationErrors(err),
	})
}

// writeError maps service errors onto responses. WalletErrors use the
// structured envelope; anything unexpected is a bare 500 message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var we *domain.WalletError
	switch {
	case errors.Is(err, domain.ErrUnsupportedProvider):
		writeJSON(w, http.StatusUnprocessableEntity, messageResponse{
			Success: false,
			Message: "The given data was invalid.",
			Errors:  map[string][]string{"provider": {"The selected provider is invalid."}},
		})
	case errors.As(err, &we):
		status, envelope := domain.ToEnvelope(we)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "Provider call failed", "error", err)
		}
		writeJSON(w, status, envelope)
	default:
		logger.ErrorContext(r.Context(), "Unhandled error", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}
