package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spacehost/spacesync/internal/errs"
)

// errorBody is the uniform error shape of the registry API.
type errorBody struct {
	Result string `json:"result"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	var body errorBody
	body.Result = "error"
	body.Error.Message = message
	respondJSON(w, status, body)
}

// respondMapped converts a service error into the API's status code. The
// message is the sentinel's text, not the full chain, so internals stay out
// of responses.
func respondMapped(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrMalformedInput):
		respondWithError(w, http.StatusBadRequest, errs.ErrMalformedInput.Error())
	case errors.Is(err, errs.ErrInvalidSignature):
		respondWithError(w, http.StatusUnauthorized, errs.ErrInvalidSignature.Error())
	case errors.Is(err, errs.ErrStaleWrite):
		respondWithError(w, http.StatusConflict, errs.ErrStaleWrite.Error())
	case errors.Is(err, errs.ErrAlreadyExists):
		respondWithError(w, http.StatusConflict, errs.ErrAlreadyExists.Error())
	case errors.Is(err, errs.ErrNotFound):
		respondWithError(w, http.StatusNotFound, errs.ErrNotFound.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}
