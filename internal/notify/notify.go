// Package notify envía avisos de seguridad por email (lockout, login
// desde dispositivo nuevo). Los toggles viven en la política del tenant;
// acá solo se despacha.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/vincsso/internal/observability/logger"
	"github.com/dropDatabas3/vincsso/internal/sso"
)

// Sender envía un email. Lo implementa SMTPSender; los tests usan un fake.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// SMTPConfig son los parámetros del servidor SMTP.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLSMode  string `yaml:"tls_mode"` // "auto" | "ssl" | "none"
}

// SMTPSender implementa Sender sobre SMTP.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender crea el sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &SMTPSender{cfg: cfg}
}

// Send envía el email con cuerpo html + texto plano.
func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} // solo dev
	default:
		// "auto": go-mail negocia STARTTLS si corresponde
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// SecurityNotifier implementa sso.Notifier sobre un Sender.
type SecurityNotifier struct {
	sender Sender
}

// New crea el notifier.
func New(sender Sender) *SecurityNotifier {
	return &SecurityNotifier{sender: sender}
}

var _ sso.Notifier = (*SecurityNotifier)(nil)

// NotifyLockout avisa del bloqueo de la cuenta por intentos fallidos.
func (n *SecurityNotifier) NotifyLockout(ctx context.Context, tenantID, email string, failed int) {
	subject := "Cuenta bloqueada temporalmente"
	text := fmt.Sprintf(
		"Detectamos %d intentos fallidos de acceso a tu cuenta y la bloqueamos temporalmente.\n"+
			"Si no fuiste vos, te recomendamos cambiar tu contraseña.", failed)
	n.send(tenantID, email, subject, text)
}

// NotifyNewDevice avisa de un login desde un dispositivo no visto.
func (n *SecurityNotifier) NotifyNewDevice(ctx context.Context, tenantID, email string, dev sso.DeviceInfo, ip string) {
	subject := "Nuevo inicio de sesión en tu cuenta"
	device := dev.DeviceType
	if dev.Browser != "" {
		device = fmt.Sprintf("%s (%s, %s)", dev.DeviceType, dev.Browser, dev.OS)
	}
	text := fmt.Sprintf(
		"Iniciaste sesión desde un dispositivo nuevo: %s, IP %s.\n"+
			"Si no fuiste vos, revocá tus sesiones y cambiá tu contraseña.", device, ip)
	n.send(tenantID, email, subject, text)
}

func (n *SecurityNotifier) send(tenantID, email, subject, text string) {
	if err := n.sender.Send(email, subject, "", text); err != nil {
		logger.Named("notify").Error("security email failed",
			logger.TenantID(tenantID),
			logger.Email(email),
			logger.Err(err),
		)
		return
	}
	logger.Named("notify").Info("security email sent",
		logger.TenantID(tenantID),
		logger.String("subject", subject),
	)
}
