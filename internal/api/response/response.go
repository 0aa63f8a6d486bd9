package response

import (
	"encoding/json"
	"net/http"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteServiceError maps a typed orchestration error to an HTTP status
// and writes it with its machine-readable kind.
func WriteServiceError(w http.ResponseWriter, err error) {
	kind := model.KindOf(err)
	WriteJSON(w, statusFor(kind), map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalid:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict, model.KindDrift:
		return http.StatusConflict
	case model.KindPermission:
		return http.StatusForbidden
	case model.KindProvision:
		return http.StatusUnprocessableEntity
	case model.KindNoPortsAvailable, model.KindBackendUnavailable:
		return http.StatusServiceUnavailable
	case model.KindLivenessTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
