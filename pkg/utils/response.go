package utils

import (
	"encoding/json"
	"net/http"
)

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// NoStore sends JSON that viewers must not cache; reports change on every write.
func NoStore(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	JSON(w, status, data)
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]interface{}{
		"status": "error",
		"error":  message,
	})
}

// RespondValidation sends per-field validation errors
func RespondValidation(w http.ResponseWriter, errors map[string]string) {
	JSON(w, http.StatusBadRequest, map[string]interface{}{
		"status": "error",
		"errors": errors,
	})
}
