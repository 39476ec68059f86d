package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/kajix/internal/common"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

var errorKinds = []struct {
	kind   error
	status int
	code   string
}{
	{common.ErrorUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{common.ErrorBadRequest, http.StatusBadRequest, "BAD_REQUEST"},
	{common.ErrorNotFound, http.StatusNotFound, "NOT_FOUND"},
	{common.ErrorConflict, http.StatusConflict, "CONFLICT"},
	{common.ErrorRequestTimeout, http.StatusRequestTimeout, "REQUEST_TIMEOUT"},
}

// writeServiceError maps a service error onto its status. The sentinel
// prefix is dropped from the message; internal errors get a fixed text.
func writeServiceError(w http.ResponseWriter, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			writeError(w, k.status, k.code, strings.TrimPrefix(err.Error(), k.kind.Error()+": "))
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return false
	}
	return true
}
