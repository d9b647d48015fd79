// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package catalog holds the static model and role definitions that drive
// routing and budget policy. The tables are tunable data: an optional YAML
// file can replace either one at startup.
package catalog

import (
	"sort"
)

// Claude model IDs routed by the engine
const (
	ModelOpus   = "claude-opus-4-20250514"
	ModelSonnet = "claude-sonnet-4-20250514"
	ModelHaiku  = "claude-3-5-haiku-20241022"
)

// Role names recognized by the engine
const (
	RoleAdmin     = "admin"
	RoleEngineer  = "engineer"
	RolePowerUser = "power_user"
	RoleBusiness  = "business"

	// DefaultRole is the fallback for unknown or absent roles
	DefaultRole = RoleBusiness
)

// ModelDef describes one routable model. Tiers form a strict order; higher
// is more capable and is preferred when downgrading.
type ModelDef struct {
	ID                   string  `yaml:"id"`
	DisplayName          string  `yaml:"display_name"`
	Tier                 int     `yaml:"tier"`
	InputCostPerMillion  float64 `yaml:"input_cost_per_million"`
	OutputCostPerMillion float64 `yaml:"output_cost_per_million"`
}

// RoleDef describes the policy bundle for one role. A nil MonthlyTokenBudget
// means unlimited.
type RoleDef struct {
	Name                string   `yaml:"name"`
	PermittedModels     []string `yaml:"permitted_models"`
	MaxTokensPerRequest int      `yaml:"max_tokens_per_request"`
	MonthlyTokenBudget  *int64   `yaml:"monthly_token_budget"`
}

func budgetOf(n int64) *int64 { return &n }

// Pricing as of October 2025, USD per million tokens
var models = map[string]ModelDef{
	ModelOpus: {
		ID:                   ModelOpus,
		DisplayName:          "Claude Opus 4",
		Tier:                 3,
		InputCostPerMillion:  15.0,
		OutputCostPerMillion: 75.0,
	},
	ModelSonnet: {
		ID:                   ModelSonnet,
		DisplayName:          "Claude Sonnet 4",
		Tier:                 2,
		InputCostPerMillion:  3.0,
		OutputCostPerMillion: 15.0,
	},
	ModelHaiku: {
		ID:                   ModelHaiku,
		DisplayName:          "Claude Haiku 3.5",
		Tier:                 1,
		InputCostPerMillion:  0.8,
		OutputCostPerMillion: 4.0,
	},
}

var roles = map[string]RoleDef{
	RoleAdmin: {
		Name:            RoleAdmin,
		PermittedModels: []string{ModelOpus, ModelSonnet, ModelHaiku},
	},
	RoleEngineer: {
		Name:                RoleEngineer,
		PermittedModels:     []string{ModelOpus, ModelSonnet, ModelHaiku},
		MaxTokensPerRequest: 64000,
		MonthlyTokenBudget:  budgetOf(5_000_000),
	},
	RolePowerUser: {
		Name:                RolePowerUser,
		PermittedModels:     []string{ModelSonnet, ModelHaiku},
		MaxTokensPerRequest: 32000,
		MonthlyTokenBudget:  budgetOf(1_000_000),
	},
	RoleBusiness: {
		Name:                RoleBusiness,
		PermittedModels:     []string{ModelSonnet, ModelHaiku},
		MaxTokensPerRequest: 8000,
		MonthlyTokenBudget:  budgetOf(200_000),
	},
}

// ModelByID looks up a model definition
func ModelByID(id string) (ModelDef, bool) {
	m, ok := models[id]
	return m, ok
}

// RoleByName looks up a role definition. Unknown names return the default
// role so callers always get a usable policy bundle.
func RoleByName(name string) RoleDef {
	if r, ok := roles[name]; ok {
		return r
	}
	return roles[DefaultRole]
}

// IsKnownRole reports whether name is one of the recognized roles
func IsKnownRole(name string) bool {
	_, ok := roles[name]
	return ok
}

// Permitted reports whether role may use the given model
func (r RoleDef) Permitted(modelID string) bool {
	for _, m := range r.PermittedModels {
		if m == modelID {
			return true
		}
	}
	return false
}

// HighestTierPermitted returns the permitted model with the highest tier.
// The second return is false when the role permits no models.
func HighestTierPermitted(role RoleDef) (ModelDef, bool) {
	var best ModelDef
	found := false
	for _, id := range role.PermittedModels {
		m, ok := models[id]
		if !ok {
			continue
		}
		if !found || m.Tier > best.Tier {
			best = m
			found = true
		}
	}
	return best, found
}

// AllModels returns the model definitions ordered by descending tier
func AllModels() []ModelDef {
	out := make([]ModelDef, 0, len(models))
	for _, m := range models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier > out[j].Tier })
	return out
}

// AllRoles returns the role definitions keyed by name
func AllRoles() map[string]RoleDef {
	out := make(map[string]RoleDef, len(roles))
	for k, v := range roles {
		out[k] = v
	}
	return out
}
