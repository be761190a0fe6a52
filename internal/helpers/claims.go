package helpers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vereinsheim/portal/internal/policy"
)

// ClaimsKey is where the auth middleware stores the session in the gin context.
const ClaimsKey = "user"

// EnhancedClaims is the session: the verified token plus the profile row.
type EnhancedClaims struct {
	*CustomClaims
	Role        string `json:"role"`
	UserID      string `json:"id"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username,omitempty"`
	Fullname    string `json:"fullname,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	AccessToken string `json:"-"`
}

func (ec *EnhancedClaims) GetSafeRole() string {
	if ec.Role == "" {
		return policy.RoleGuest
	}
	return ec.Role
}

// Principal converts the session into the policy's view of the caller.
func (ec *EnhancedClaims) Principal() policy.Principal {
	if ec == nil {
		return policy.Principal{}
	}
	id, _ := uuid.Parse(ec.UserID)
	return policy.Principal{UserID: id, Email: ec.Email, Role: ec.GetSafeRole()}
}

// ClaimsFrom returns the session of the request, or nil for anonymous callers.
func ClaimsFrom(c *gin.Context) *EnhancedClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*EnhancedClaims)
	return claims
}

// PrincipalFrom is ClaimsFrom(c).Principal() without the nil check.
func PrincipalFrom(c *gin.Context) policy.Principal {
	return ClaimsFrom(c).Principal()
}
