package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const operatorContextKey contextKey = "operator"

// RoleAdmin is the role allowed to change the registry, the watchlist and fines.
const RoleAdmin = "admin"

var errInvalidToken = errors.New("invalid token")

// Operator is the authenticated caller carried in a verified bearer token.
type Operator struct {
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// FullName returns "First Last", falling back to the username.
func (o *Operator) FullName() string {
	name := strings.TrimSpace(o.FirstName + " " + o.LastName)
	if name == "" {
		return o.Username
	}
	return name
}

// IsAdmin reports whether the operator has the admin role.
func (o *Operator) IsAdmin() bool {
	return o.Role == RoleAdmin
}

// Verifier validates HS256 operator tokens.
type Verifier struct {
	signingKey []byte
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{signingKey: []byte(secret)}
}

// Verify parses tokenString and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Operator, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Operator{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	operator, ok := parsed.Claims.(*Operator)
	if !ok || !parsed.Valid || operator.Username == "" {
		return nil, errInvalidToken
	}
	return operator, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth is middleware that requires a valid bearer token
func RequireAuth(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			operator, err := v.Verify(token)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, "token has expired")
					return
				}
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), operatorContextKey, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects operators without the admin role. It must run after
// RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator := GetOperatorFromContext(r.Context())
		if operator == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !operator.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetOperatorFromContext retrieves the operator from the request context
func GetOperatorFromContext(ctx context.Context) *Operator {
	operator, ok := ctx.Value(operatorContextKey).(*Operator)
	if !ok {
		return nil
	}
	return operator
}

// SetOperatorInContext adds an operator to the context.
// This is primarily for testing - use RequireAuth middleware in production.
func SetOperatorInContext(ctx context.Context, operator *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey, operator)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
