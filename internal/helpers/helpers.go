package helpers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ContestFolder = "special-events"
)

type CustomClaims struct {
	Role        string `json:"role"`
	Email       string `json:"email"`
	AppMetadata struct {
		Provider  string   `json:"provider"`
		Providers []string `json:"providers"`
		Roles     []string `json:"roles,omitempty"`
	} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// TokenValidator checks Supabase access tokens against the project's JWKS.
// The key set is fetched once and refreshed in the background.
type TokenValidator struct {
	jwksURL string
	jwks    *keyfunc.JWKS
}

func NewTokenValidator(ctx context.Context, supabaseURL string) (*TokenValidator, error) {
	if supabaseURL == "" {
		return nil, errors.New("SUPABASE_URL not set")
	}
	jwksURL := fmt.Sprintf("%s/auth/v1/.well-known/jwks.json", strings.TrimRight(supabaseURL, "/"))

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               fetchCtx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}
	return &TokenValidator{jwksURL: jwksURL, jwks: jwks}, nil
}

// NewTokenValidatorFromJWKS wraps an already built key set.
func NewTokenValidatorFromJWKS(jwks *keyfunc.JWKS) *TokenValidator {
	return &TokenValidator{jwks: jwks}
}

func (v *TokenValidator) Validate(tokenStr string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, v.jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	return claims, nil
}

func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

var (
	hasLower   = regexp.MustCompile(`[a-z]`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasNumber  = regexp.MustCompile(`\d`)
	hasSpecial = regexp.MustCompile(`[@$!%*?&#^()_\-+=.,;:]`)
)

func IsPasswordStrong(password string) bool {
	if len(password) < 8 {
		return false
	}
	return hasLower.MatchString(password) &&
		hasUpper.MatchString(password) &&
		hasNumber.MatchString(password) &&
		hasSpecial.MatchString(password)
}

func StringTrim(s string) string {
	return strings.TrimSpace(s)
}

var dataURIPattern = regexp.MustCompile(`^data:([a-zA-Z0-9.+-]+/[a-zA-Z0-9.+-]+);base64,(.+)$`)

// ParseDataURI decodes a base64 data URI as sent by browser file readers.
func ParseDataURI(uri string) (string, []byte, error) {
	m := dataURIPattern.FindStringSubmatch(strings.TrimSpace(uri))
	if m == nil {
		return "", nil, errors.New("not a base64 data URI")
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return strings.ToLower(m[1]), data, nil
}

// CloudinaryUploader pushes contest images to the Cloudinary CDN. Sources may
// be data URIs or remote URLs; Cloudinary fetches the latter itself.
type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryUploader(cld *cloudinary.Cloudinary) *CloudinaryUploader {
	return &CloudinaryUploader{cld: cld}
}

func (u *CloudinaryUploader) UploadImage(ctx context.Context, source, folder string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", errors.New("empty image source")
	}
	uploadResult, err := u.cld.Upload.Upload(ctx, source, uploader.UploadParams{
		Folder: folder,
		Tags:   []string{"vereinsheim", "special-event"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	if uploadResult.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected image: %s", uploadResult.Error.Message)
	}
	return uploadResult.SecureURL, nil
}
