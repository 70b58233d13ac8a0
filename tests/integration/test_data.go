//go:build integration

package integration

import (
	"fmt"
	"time"
)

// TestPassword satisfies the password policy
const TestPassword = "TestPassword123!"

// TestAccountEmail generates a unique test email using a timestamp
func TestAccountEmail(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
}

// ExtractTokenFromEmail extracts the reset token from a captured email body
// Email format: "Reset token: {token}"
func ExtractTokenFromEmail(emailBody string) string {
	prefix := "Reset token: "
	if len(emailBody) > len(prefix) {
		return emailBody[len(prefix):]
	}
	return ""
}
