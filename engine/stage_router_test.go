// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dynamo-works/claude-engine/catalog"
)

func TestResolveModel_AdminPassThrough(t *testing.T) {
	d := ResolveModel(catalog.ModelOpus, catalog.RoleAdmin, catalog.ModelSonnet)

	assert.Equal(t, catalog.ModelOpus, d.ResolvedModel)
	assert.False(t, d.Downgraded)

	// admins are never downgraded, even for unknown models
	d = ResolveModel("claude-experimental", catalog.RoleAdmin, catalog.ModelSonnet)
	assert.Equal(t, "claude-experimental", d.ResolvedModel)
	assert.False(t, d.Downgraded)
}

func TestResolveModel_PermittedPassThrough(t *testing.T) {
	d := ResolveModel(catalog.ModelOpus, catalog.RoleEngineer, catalog.ModelSonnet)

	assert.Equal(t, catalog.ModelOpus, d.ResolvedModel)
	assert.False(t, d.Downgraded)
}

func TestResolveModel_BusinessDowngrade(t *testing.T) {
	d := ResolveModel(catalog.ModelOpus, catalog.RoleBusiness, catalog.ModelSonnet)

	// highest permitted tier for business is sonnet
	assert.Equal(t, catalog.ModelSonnet, d.ResolvedModel)
	assert.True(t, d.Downgraded)
	assert.Equal(t, catalog.RoleBusiness, d.EffectiveRole)
}

func TestResolveModel_UnknownRoleUsesDefault(t *testing.T) {
	d := ResolveModel(catalog.ModelOpus, "contractor", catalog.ModelSonnet)

	assert.Equal(t, catalog.ModelSonnet, d.ResolvedModel)
	assert.True(t, d.Downgraded)
	assert.Equal(t, catalog.RoleBusiness, d.EffectiveRole)
}

func TestResolveModel_ResolvedAlwaysPermitted(t *testing.T) {
	requests := []string{catalog.ModelOpus, catalog.ModelSonnet, catalog.ModelHaiku, "claude-unknown", ""}
	roles := []string{catalog.RoleEngineer, catalog.RolePowerUser, catalog.RoleBusiness, "nobody"}

	for _, role := range roles {
		def := catalog.RoleByName(role)
		for _, requested := range requests {
			d := ResolveModel(requested, role, catalog.ModelSonnet)
			assert.True(t, def.Permitted(d.ResolvedModel),
				"role %s requested %s resolved %s", role, requested, d.ResolvedModel)
			assert.Equal(t, !def.Permitted(requested), d.Downgraded)
		}
	}
}
