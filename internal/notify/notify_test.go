package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dropDatabas3/vincsso/internal/sso"
)

type fakeSender struct {
	to      []string
	subject []string
	body    []string
	err     error
}

func (f *fakeSender) Send(to, subject, htmlBody, textBody string) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.subject = append(f.subject, subject)
	f.body = append(f.body, textBody)
	return nil
}

func TestNotifyLockout(t *testing.T) {
	fs := &fakeSender{}
	n := New(fs)

	n.NotifyLockout(context.Background(), "acme", "u1@acme.test", 5)

	if len(fs.to) != 1 || fs.to[0] != "u1@acme.test" {
		t.Fatalf("sent to %v, want u1@acme.test", fs.to)
	}
	if !strings.Contains(fs.body[0], "5 intentos") {
		t.Errorf("body %q missing attempt count", fs.body[0])
	}
}

func TestNotifyNewDevice(t *testing.T) {
	fs := &fakeSender{}
	n := New(fs)

	n.NotifyNewDevice(context.Background(), "acme", "u1@acme.test",
		sso.DeviceInfo{DeviceType: "mobile", Browser: "Chrome", OS: "Android"}, "10.0.0.1")

	if len(fs.body) != 1 {
		t.Fatal("no email sent")
	}
	if !strings.Contains(fs.body[0], "Chrome") || !strings.Contains(fs.body[0], "10.0.0.1") {
		t.Errorf("body %q missing device/ip", fs.body[0])
	}
}

func TestSendFailureDoesNotPanic(t *testing.T) {
	n := New(&fakeSender{err: errors.New("smtp down")})
	n.NotifyLockout(context.Background(), "acme", "u1@acme.test", 5)
}
