// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dynamo-works/claude-engine/apikeys"
	"github.com/dynamo-works/claude-engine/catalog"
	"github.com/dynamo-works/claude-engine/config"
)

// mockDefaultEmail is the identity assumed when mock mode gets no headers
const mockDefaultEmail = "test@dynamo.works"

// groupRolePriority maps identity-provider group markers to roles. The
// first marker present in the user's groups wins.
var groupRolePriority = []struct {
	Marker string
	Role   string
}{
	{"Admins", catalog.RoleAdmin},
	{"Engineers", catalog.RoleEngineer},
	{"Power", catalog.RolePowerUser},
	{"Business", catalog.RoleBusiness},
}

// RoleFromGroups resolves a role from identity groups by fixed priority.
// Empty groups resolve to the default role.
func RoleFromGroups(groups []string) string {
	for _, entry := range groupRolePriority {
		for _, g := range groups {
			if strings.Contains(strings.ToLower(g), strings.ToLower(entry.Marker)) {
				return entry.Role
			}
		}
	}
	return catalog.DefaultRole
}

// extractBearer pulls the token out of the Authorization header
func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// detectAuthMethod classifies a presented token by prefix
func detectAuthMethod(token string) AuthMethod {
	switch {
	case strings.HasPrefix(token, apikeys.KeyPrefix):
		return AuthMethodAPIKey
	case strings.HasPrefix(token, "eyJ"):
		return AuthMethodToken
	default:
		return AuthMethodNone
	}
}

// authMiddleware resolves the caller's identity and role. API keys work in
// both modes; signed bearers only in token mode; mock headers only in mock
// mode.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := GetRequestContext(r.Context())
		token := extractBearer(r)

		switch detectAuthMethod(token) {
		case AuthMethodAPIKey:
			if err := s.authenticateAPIKey(r, rc, token); err != nil {
				writeError(w, rc.RequestID, err)
				return
			}

		case AuthMethodToken:
			if s.cfg.AuthMode == config.AuthModeToken {
				if err := s.authenticateJWT(r, rc, token); err != nil {
					writeError(w, rc.RequestID, err)
					return
				}
				break
			}
			// mock mode ignores bearers it cannot verify
			s.authenticateMock(r, rc)

		default:
			if s.cfg.AuthMode == config.AuthModeToken {
				writeError(w, rc.RequestID, NewAppError(CodeAuthRequired,
					"Authentication required: provide an API key or bearer token", http.StatusUnauthorized))
				return
			}
			s.authenticateMock(r, rc)
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticateAPIKey(r *http.Request, rc *RequestContext, token string) error {
	if !apikeys.IsValidKeyFormat(token) {
		return NewAppError(CodeInvalidAPIKey, "Invalid API key", http.StatusUnauthorized)
	}

	key, err := s.apiKeys.LookupByHash(r.Context(), apikeys.HashKey(token))
	if err != nil {
		return NewAppError(CodeInvalidAPIKey, "Invalid API key", http.StatusUnauthorized)
	}

	rc.UserID = key.UserID
	rc.UserEmail = key.UserEmail
	rc.Role = key.Role
	rc.APIKeyID = key.ID
	rc.AuthMethod = AuthMethodAPIKey
	return nil
}

// jwtClaims is the accepted claim set for signed bearers
type jwtClaims struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Groups      []string `json:"groups"`
	Role        string   `json:"role"`
	ID          string   `json:"id"`
	jwt.RegisteredClaims
}

func (s *Server) authenticateJWT(r *http.Request, rc *RequestContext, token string) error {
	claims := &jwtClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return NewAppError(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
	}

	// Identity: sub, then id, then email
	userID := claims.Subject
	if userID == "" {
		userID = claims.ID
	}
	if userID == "" {
		userID = claims.Email
	}
	if userID == "" {
		return NewAppError(CodeInvalidToken, "Token carries no usable identity", http.StatusUnauthorized)
	}

	role := claims.Role
	if len(claims.Groups) > 0 {
		role = RoleFromGroups(claims.Groups)
	}
	if role == "" {
		role = catalog.DefaultRole
	}

	displayName := claims.Name
	if displayName == "" {
		displayName = claims.DisplayName
	}

	rc.UserID = userID
	rc.UserEmail = claims.Email
	rc.DisplayName = displayName
	rc.Role = role
	rc.AuthMethod = AuthMethodToken

	// Keep the profile current without holding up the request
	s.upsertProfileAsync(profileUpsert{
		UserID:      userID,
		Email:       claims.Email,
		DisplayName: displayName,
		Role:        role,
		Groups:      claims.Groups,
	})

	return nil
}

// authenticateMock reads the development identity headers. The chat
// frontend sends X-User-*; tests send X-Mock-User-*.
func (s *Server) authenticateMock(r *http.Request, rc *RequestContext) {
	email := r.Header.Get("X-Mock-User-Email")
	role := r.Header.Get("X-Mock-User-Role")

	if email == "" {
		email = r.Header.Get("X-User-Email")
	}
	if role == "" {
		role = r.Header.Get("X-User-Role")
	}
	if email == "" {
		email = mockDefaultEmail
	}
	if role == "" || !catalog.IsKnownRole(role) {
		role = catalog.DefaultRole
	}

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		if at := strings.Index(email, "@"); at > 0 {
			userID = email[:at]
		} else {
			userID = email
		}
	}

	rc.UserID = userID
	rc.UserEmail = email
	rc.Role = role
	rc.AuthMethod = AuthMethodMock
}
