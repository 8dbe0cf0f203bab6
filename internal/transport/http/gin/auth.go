package httpgin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

const callerKey = "caller"

// Claims carried by access tokens. Subject is the decimal user ID.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth validates an HS256 bearer token and stores the caller on the
// context.
func JWTAuth(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
			return
		}

		var claims Claims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid subject"})
			return
		}

		c.Set(callerKey, domain.Caller{UserID: userID, Admin: claims.Role == domain.RoleAdmin})
		c.Next()
	}
}

// RequireAdmin rejects callers without the ADMIN role. It must run after
// JWTAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := callerFrom(c)
		if err != nil || !caller.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) (domain.Caller, error) {
	v, ok := c.Get(callerKey)
	if !ok {
		return domain.Caller{}, errors.New("no caller")
	}
	caller, ok := v.(domain.Caller)
	if !ok {
		return domain.Caller{}, errors.New("bad caller")
	}
	return caller, nil
}

// SignToken issues an HS256 token for userID with role.
func SignToken(secret []byte, userID int64, role domain.Role, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = strconv.FormatInt(userID, 10)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: role, RegisteredClaims: claims}).SignedString(secret)
}
