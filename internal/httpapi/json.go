// Package httpapi expone la superficie HTTP del servicio: helpers JSON,
// middlewares y handlers de oauth2/sesiones/admin sobre chi.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Códigos internos numerados. Van en error_code del payload para que el
// soporte pueda rastrear la causa exacta sin depender del texto.
const (
	codeInvalidRequest  = 1100
	codeInvalidJSON     = 1102
	codeInvalidClient   = 1201
	codeInvalidRedirect = 1202
	codeInvalidGrant    = 1203
	codePKCERequired    = 1204
	codeInvalidTicket   = 1205
	codeAccountLocked   = 1301
	codeIPBlocked       = 1302
	codeSessionNotFound = 1310
	codeSessionExpired  = 1311
	codeSessionRevoked  = 1312
	codeInvalidRefresh  = 1313
	codeRateLimited     = 1401
	codeUnauthorized    = 1403
	codeNotFound        = 1404
	codeConflict        = 1409
	codeInternal        = 1500
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        int    `json:"error_code,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// WriteError escribe el payload de error estándar. Lee el X-Request-ID ya
// seteado en los headers de respuesta por el middleware.
func WriteError(w http.ResponseWriter, status int, code, desc string, errCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		ErrorCode:        errCode,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodifica JSON de forma tolerante (no falla por campos
// desconocidos). Valida Content-Type y limita el body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json", codeInvalidJSON)
		return false
	}
	// máx 1MB
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido", codeInvalidJSON)
		return false
	}
	return true
}
