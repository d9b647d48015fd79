// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"net/http"

	"github.com/dynamo-works/claude-engine/catalog"
)

// RouteDecision is the outcome of resolving a requested model against the
// caller's role
type RouteDecision struct {
	ResolvedModel string
	Downgraded    bool
	EffectiveRole string
}

// ResolveModel re-resolves the requested model to one the role may use.
// Admins pass through untouched; everyone else gets the highest-tier
// permitted model when the request is out of policy.
func ResolveModel(requested, role string, defaultModel string) RouteDecision {
	def := catalog.RoleByName(role)

	if def.Name == catalog.RoleAdmin {
		return RouteDecision{ResolvedModel: requested, EffectiveRole: def.Name}
	}

	if def.Permitted(requested) {
		return RouteDecision{ResolvedModel: requested, EffectiveRole: def.Name}
	}

	if best, ok := catalog.HighestTierPermitted(def); ok {
		return RouteDecision{ResolvedModel: best.ID, Downgraded: true, EffectiveRole: def.Name}
	}

	return RouteDecision{ResolvedModel: defaultModel, Downgraded: true, EffectiveRole: def.Name}
}

// modelRouterMiddleware rewrites the upstream request to the resolved model
// and caps max_tokens at the role's per-request limit
func (s *Server) modelRouterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := GetRequestContext(r.Context())

		decision := ResolveModel(rc.Proxy.RequestedModel, rc.Role, s.cfg.UpstreamDefaultModel)
		rc.Proxy.Upstream.Model = decision.ResolvedModel
		if decision.Downgraded {
			w.Header().Set("X-Model-Downgraded", "true")
			s.log.Info(rc.RequestID, "model downgraded", map[string]interface{}{
				"requested": rc.Proxy.RequestedModel,
				"resolved":  decision.ResolvedModel,
				"role":      decision.EffectiveRole,
			})
		}

		roleDef := catalog.RoleByName(decision.EffectiveRole)
		if roleDef.MaxTokensPerRequest > 0 && rc.Proxy.Upstream.MaxTokens > roleDef.MaxTokensPerRequest {
			rc.Proxy.Upstream.MaxTokens = roleDef.MaxTokensPerRequest
		}

		next.ServeHTTP(w, r)
	})
}
