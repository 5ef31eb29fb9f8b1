package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEnrollment(t *testing.T) {
	tm := NewTOTPManager("fairlines")

	enrollment, err := tm.GenerateEnrollment("player@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.URL, "otpauth://totp/"))
	assert.Contains(t, enrollment.URL, "fairlines")
	assert.True(t, strings.HasPrefix(enrollment.QRDataURL, "data:image/png;base64,"))
}

func TestValidateCode(t *testing.T) {
	tm := NewTOTPManager("fairlines")

	enrollment, err := tm.GenerateEnrollment("player@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	assert.True(t, tm.ValidateCode(enrollment.Secret, code))
	assert.False(t, tm.ValidateCode(enrollment.Secret, "000000"))
	assert.False(t, tm.ValidateCode(enrollment.Secret, ""))
}

func TestValidateCode_DifferentSecret(t *testing.T) {
	tm := NewTOTPManager("fairlines")

	first, err := tm.GenerateEnrollment("a@example.com")
	require.NoError(t, err)
	second, err := tm.GenerateEnrollment("b@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(first.Secret, time.Now())
	require.NoError(t, err)

	assert.False(t, tm.ValidateCode(second.Secret, code))
}
