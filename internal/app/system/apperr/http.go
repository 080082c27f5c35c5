package apperr

import (
	"encoding/json"
	"net/http"
)

// Body is the JSON error envelope written by API handlers.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON writes err as a JSON error response with its mapped status.
func WriteJSON(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(Body{Error: err.Error(), Code: Code(err)})
}
