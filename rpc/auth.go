package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures bearer-token authentication of mutating methods.
// Authentication is disabled when HMACSecret is empty.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

var (
	errMissingToken   = errors.New("missing bearer token")
	errInvalidToken   = errors.New("invalid token")
	errMissingSubject = errors.New("token subject required")
	errAuthDisabled   = errors.New("rpc authentication not configured")
)

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Enabled reports whether a signing secret is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Authenticate validates the bearer token of r and returns its subject.
// Tokens without a sub claim are rejected.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return "", errMissingToken
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return "", errInvalidToken
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return "", errInvalidToken
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return "", errInvalidToken
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errMissingSubject
	}
	return subject, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience missing")
		}
	}
	return nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
