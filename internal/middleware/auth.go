package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"prs/internal/apperror"
	"prs/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID  = "userID"
	ctxIsAdmin = "isAdmin"

	accessTokenCookie = "access_token"
)

// SetTokenCookie stores the access token as an HttpOnly cookie.
// Release mode (cross-origin frontend) needs SameSite=None and Secure.
func SetTokenCookie(c *gin.Context, accessToken string, release bool) {
	sameSite := http.SameSiteLaxMode
	if release {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(accessTokenCookie, accessToken, 3600*24, "/", "", release, true)
}

// ParseToken validates an HMAC-signed token and returns the user id in its subject.
func ParseToken(tokenString string, secret []byte) (uint, bool, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return 0, false, err
	}
	if !token.Valid {
		return 0, false, errors.New("token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false, errors.New("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, false, errors.New("token has no subject")
	}
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return 0, false, errors.New("token subject is not a user id")
	}

	admin, _ := claims["admin"].(bool)
	return uint(id), admin, nil
}

// RequireAuth validates the JWT from the access_token cookie or the Bearer header
// and stores the acting user in the gin context.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie(accessTokenCookie)
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				abort(c, http.StatusUnauthorized, apperror.KindUnauthorized, "Authorization is missing")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				abort(c, http.StatusUnauthorized, apperror.KindUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'")
				return
			}
			tokenString = parts[1]
		}

		userID, admin, err := ParseToken(tokenString, secret)
		if err != nil {
			abort(c, http.StatusUnauthorized, apperror.KindUnauthorized, "Invalid token: "+err.Error())
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxIsAdmin, admin)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxIsAdmin) {
			abort(c, http.StatusForbidden, apperror.KindForbidden, "Access denied: administrator only")
			return
		}
		c.Next()
	}
}

// CurrentUserID returns the acting user set by RequireAuth.
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

func abort(c *gin.Context, status int, kind apperror.Kind, msg string) {
	c.AbortWithStatusJSON(status, response.Error(status, string(kind), msg))
}
