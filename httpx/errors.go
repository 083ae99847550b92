package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/opina-app/opina/fault"
	"github.com/opina-app/opina/log"
)

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log a debug message, and send an HTTP response with status 404 and default text
func LogNotFound(w http.ResponseWriter, code string, id any) {
	log.Debugf("%s: not found (%v)", code, id)
	w.WriteHeader(http.StatusNotFound)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	log.Log(level, code)
	http.Error(w, http.StatusText(status), status)
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.Log(level, code+":", errMsg)
	http.Error(w, errMsg, status)
}

// StatusOf maps a fault type onto an HTTP status code.
func StatusOf(err error) int {
	switch fault.TypeOf(err) {
	case fault.ErrValidation:
		return http.StatusBadRequest
	case fault.ErrMissing:
		return http.StatusNotFound
	case fault.ErrUnauthorized:
		return http.StatusUnauthorized
	case fault.ErrForbidden:
		return http.StatusForbidden
	case fault.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RenderFault logs the error under the given code and writes the structured
// JSON error body. Internal errors keep their details out of the response.
func RenderFault(w http.ResponseWriter, r *http.Request, code string, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s: %s", code, err)
		render.Status(r, status)
		render.JSON(w, r, map[string]any{"error": http.StatusText(status)})
		return
	}

	log.Debugf("%s: %s", code, err)
	body := map[string]any{"error": http.StatusText(status)}
	if msg := fault.Message(err); msg != "" {
		body["detail"] = msg
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}
