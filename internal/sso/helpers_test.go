package sso

import (
	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/security/token"
)

func hashForTest(raw string) string {
	return token.SHA256Base64URL(raw)
}

func updateInput(maxSessions *int) repository.UpdateSecurityConfigInput {
	return repository.UpdateSecurityConfigInput{MaxSessionsPerUser: maxSessions}
}

func intPtr(v int) *int         { return &v }
func boolPtr(v bool) *bool      { return &v }
func strField(v string) *string { return &v }
