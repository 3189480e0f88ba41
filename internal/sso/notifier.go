package sso

import "context"

// Notifier despacha avisos de seguridad al usuario. Las implementaciones
// deben ser no-bloqueantes o tolerar llamadas desde goroutines.
type Notifier interface {
	// NotifyLockout avisa que la cuenta quedó bloqueada por intentos
	// fallidos.
	NotifyLockout(ctx context.Context, tenantID, email string, failed int)

	// NotifyNewDevice avisa de un login desde un dispositivo no visto.
	NotifyNewDevice(ctx context.Context, tenantID, email string, dev DeviceInfo, ip string)
}
