// Package sso implementa el núcleo de autenticación y seguridad de
// sesiones: política por tenant, ledger de intentos, registro de IPs
// bloqueadas, broker de authorization codes y gestión de sesiones.
package sso

import "errors"

// Taxonomía de errores del dominio. Los handlers HTTP los mapean a
// códigos OAuth2 / payloads de error; el detalle interno queda en logs
// y métricas.
var (
	// ErrInvalidClient: client desconocido, inactivo o secret inválido.
	ErrInvalidClient = errors.New("invalid client")

	// ErrInvalidRedirect: redirect_uri no registrada para el client.
	ErrInvalidRedirect = errors.New("redirect uri not allowed")

	// ErrInvalidGrant: code inexistente, usado, expirado o PKCE fallido.
	// Todas las causas colapsan acá de cara afuera.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrAccountLocked: demasiados intentos fallidos en la ventana.
	ErrAccountLocked = errors.New("account locked")

	// ErrProgressiveDelay: el intento llega antes de que venza el delay
	// progresivo.
	ErrProgressiveDelay = errors.New("retry later")

	// ErrIPBlocked: la IP tiene un bloqueo activo (global o del tenant).
	ErrIPBlocked = errors.New("ip blocked")

	// ErrSessionNotFound: la sesión no existe.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired: la sesión venció.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked: la sesión fue revocada.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrInvalidRefresh: refresh token desconocido o de sesión muerta.
	ErrInvalidRefresh = errors.New("invalid refresh token")

	// ErrPKCERequired: el client es público y no mandó challenge.
	ErrPKCERequired = errors.New("pkce required")

	// ErrInvalidTicket: login ticket desconocido, vencido o ya canjeado.
	ErrInvalidTicket = errors.New("invalid login ticket")
)
