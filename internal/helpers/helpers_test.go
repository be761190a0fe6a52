package helpers

import (
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vereinsheim/portal/internal/policy"
)

var testSecret = []byte("super-secret-jwt-token-with-at-least-32-characters")

func signedToken(t *testing.T, kid string, key []byte, claims CustomClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func testValidator() *TokenValidator {
	return NewTokenValidatorFromJWKS(keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		"test-key": keyfunc.NewGivenHMAC(testSecret, keyfunc.GivenKeyOptions{}),
	}))
}

func TestTokenValidator(t *testing.T) {
	v := testValidator()
	sub := uuid.NewString()

	valid := CustomClaims{
		Role:  "authenticated",
		Email: "erika@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	claims, err := v.Validate(signedToken(t, "test-key", testSecret, valid))
	require.NoError(t, err)
	assert.Equal(t, sub, claims.Subject)
	assert.Equal(t, "erika@example.com", claims.Email)

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = v.Validate(signedToken(t, "test-key", testSecret, expired))
	assert.Error(t, err)

	_, err = v.Validate(signedToken(t, "test-key", []byte("another-secret-another-secret-0000"), valid))
	assert.Error(t, err)

	_, err = v.Validate(signedToken(t, "unknown-key", testSecret, valid))
	assert.Error(t, err)

	_, err = v.Validate("not-a-jwt")
	assert.Error(t, err)
}

func TestIsPasswordStrong(t *testing.T) {
	assert.True(t, IsPasswordStrong("Sommerfest#2024"))
	assert.False(t, IsPasswordStrong("Kurz#1"))
	assert.False(t, IsPasswordStrong("sommerfest#2024"))
	assert.False(t, IsPasswordStrong("Sommerfest2024"))
	assert.False(t, IsPasswordStrong("SOMMERFEST#2024"))
}

func TestParseDataURI(t *testing.T) {
	mime, data, err := ParseDataURI(" data:image/PNG;base64,aGFsbG8= ")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte("hallo"), data)

	_, _, err = ParseDataURI("https://example.com/bild.png")
	assert.Error(t, err)

	_, _, err = ParseDataURI("data:image/png;base64,%%%")
	assert.Error(t, err)
}

func TestPrincipal(t *testing.T) {
	var none *EnhancedClaims
	assert.False(t, none.Principal().Authenticated())

	id := uuid.New()
	p := (&EnhancedClaims{UserID: id.String(), Email: "a@b.de"}).Principal()
	assert.Equal(t, id, p.UserID)
	assert.Equal(t, policy.RoleGuest, p.Role)
	assert.True(t, p.Authenticated())
}
