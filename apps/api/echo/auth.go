package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/access"
)

const (
	contextTokenKey = "userToken"
	jwtAudience     = "Ekklesia"
)

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are issued by the identity module; Subject is the user id.
type Claims struct {
	jwt.StandardClaims
	TenantID string   `json:"tenant_id"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// newJWTConfig returns the JWT auth middleware config.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func NewClaims(p access.Principal, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   p.UserID,
			Audience:  jwtAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		TenantID: p.TenantID,
		Username: p.Username,
		Email:    p.Email,
		Roles:    p.Roles,
	}
}

func (c Claims) Principal() access.Principal {
	return access.Principal{
		UserID:   c.Subject,
		TenantID: c.TenantID,
		Username: c.Username,
		Email:    c.Email,
		Roles:    c.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// principalMiddleware stores the access.Principal of the JWT claims in the request context.
func principalMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		if claims.TenantID == "" {
			return errHttpForbidden
		}
		req := ctx.Request()
		ctx.SetRequest(req.WithContext(access.WithPrincipal(req.Context(), claims.Principal())))
		return next(ctx)
	}
}

// contextPrincipal returns the Principal set by principalMiddleware.
func contextPrincipal(ctx echo.Context) (access.Principal, error) {
	p, ok := access.PrincipalFrom(ctx.Request().Context())
	if !ok {
		return access.Principal{}, errUnauthorized
	}
	return p, nil
}
