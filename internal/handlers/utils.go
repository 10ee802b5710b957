package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"subtitle-indexer/internal/indexer"
	"subtitle-indexer/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatus(w, statusCode, map[string]string{"error": message})
}

// writeResult maps a control Result to 200 or 409.
func writeResult(w http.ResponseWriter, res indexer.Result) {
	code := http.StatusOK
	if !res.Accepted {
		code = http.StatusConflict
	}
	writeJSONStatus(w, code, res)
}

// reject writes a rejected Result with the given status code.
func reject(w http.ResponseWriter, statusCode int, reason string) {
	writeJSONStatus(w, statusCode, indexer.Result{Reason: reason})
}

// queryBool parses a boolean query parameter. Missing means def.
func queryBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

// queryInt parses a positive integer query parameter. Missing, invalid or
// non-positive values yield def.
func queryInt(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v > 0 {
		return v
	}
	return def
}
