package errs

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// codes maps application error codes to http status codes.
var codes = map[string]int{
	EUNAUTHENTICATED: http.StatusUnauthorized,
	EINVALID:         http.StatusBadRequest,
	ENOTFOUND:        http.StatusNotFound,
	ECONFLICT:        http.StatusConflict,
	EFORBIDDEN:       http.StatusForbidden,
	EPARTIAL:         http.StatusInternalServerError,
	EEMPTY:           http.StatusNotFound,
	ETOOMANY:         http.StatusTooManyRequests,
	EINTERNAL:        http.StatusInternalServerError,
}

// StatusCode returns the http status code belonging to an application error code.
func StatusCode(code string) int {
	if status, ok := codes[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the json body written for every failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody holds the code and the user facing message of an error.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReturnError writes err as json with the matching status code.
// Internal errors and partial failures are logged, since they point at a problem on our side.
func ReturnError(log logrus.FieldLogger, w http.ResponseWriter, r *http.Request, err error) {
	code, message := ErrorCode(err), ErrorMessage(err)
	if code == EINTERNAL || code == EPARTIAL {
		LogError(log, r, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(code))
	resp := ErrorResponse{Error: ErrorBody{Code: code, Message: message}}
	if err := json.NewEncoder(w).Encode(&resp); err != nil {
		LogError(log, r, err)
	}
}

// LogError logs err along with the request it happened in.
func LogError(log logrus.FieldLogger, r *http.Request, err error) {
	log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).WithError(err).Error("request failed")
}
