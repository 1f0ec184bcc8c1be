package handlers

import (
	"net/http"

	"github.com/crewdeck/crewdeck/internal/apperr"
)

// writeError renders a service error as the standard error envelope,
// with the status taken from the error's code.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), map[string]string{"error": apperr.PublicMessage(err)})
}
