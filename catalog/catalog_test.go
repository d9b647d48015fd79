// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelByID(t *testing.T) {
	m, ok := ModelByID(ModelOpus)
	require.True(t, ok)
	assert.Equal(t, 3, m.Tier)
	assert.Equal(t, 15.0, m.InputCostPerMillion)

	_, ok = ModelByID("gpt-4")
	assert.False(t, ok)
}

func TestModelTiersStrictlyOrdered(t *testing.T) {
	models := AllModels()
	require.NotEmpty(t, models)

	seen := make(map[int]bool)
	for _, m := range models {
		assert.False(t, seen[m.Tier], "duplicate tier %d", m.Tier)
		seen[m.Tier] = true
	}

	// AllModels returns descending tiers
	for i := 1; i < len(models); i++ {
		assert.Greater(t, models[i-1].Tier, models[i].Tier)
	}
}

func TestRoleByName_FallsBackToBusiness(t *testing.T) {
	assert.Equal(t, RoleEngineer, RoleByName(RoleEngineer).Name)
	assert.Equal(t, RoleBusiness, RoleByName("no-such-role").Name)
	assert.Equal(t, RoleBusiness, RoleByName("").Name)
}

func TestRolePermissions(t *testing.T) {
	business := RoleByName(RoleBusiness)
	assert.True(t, business.Permitted(ModelSonnet))
	assert.True(t, business.Permitted(ModelHaiku))
	assert.False(t, business.Permitted(ModelOpus))

	engineer := RoleByName(RoleEngineer)
	assert.True(t, engineer.Permitted(ModelOpus))
}

func TestHighestTierPermitted(t *testing.T) {
	best, ok := HighestTierPermitted(RoleByName(RoleBusiness))
	require.True(t, ok)
	assert.Equal(t, ModelSonnet, best.ID)

	best, ok = HighestTierPermitted(RoleByName(RoleEngineer))
	require.True(t, ok)
	assert.Equal(t, ModelOpus, best.ID)

	_, ok = HighestTierPermitted(RoleDef{Name: "empty"})
	assert.False(t, ok)
}

func TestAdminHasNoBudget(t *testing.T) {
	admin := RoleByName(RoleAdmin)
	assert.Nil(t, admin.MonthlyTokenBudget)
	assert.Zero(t, admin.MaxTokensPerRequest)

	business := RoleByName(RoleBusiness)
	require.NotNil(t, business.MonthlyTokenBudget)
	assert.Equal(t, int64(200_000), *business.MonthlyTokenBudget)
}

func TestLoadFile_OverridesModels(t *testing.T) {
	savedModels, savedRoles := models, roles
	t.Cleanup(func() { models, roles = savedModels, savedRoles })

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - id: claude-test-1
    display_name: Test Model
    tier: 9
    input_cost_per_million: 1.0
    output_cost_per_million: 2.0
`), 0o600))

	require.NoError(t, LoadFile(path))

	m, ok := ModelByID("claude-test-1")
	require.True(t, ok)
	assert.Equal(t, 9, m.Tier)

	// roles were not in the file and stay intact
	assert.Equal(t, RoleBusiness, RoleByName(RoleBusiness).Name)
}

func TestLoadFile_RejectsRolesWithoutDefault(t *testing.T) {
	savedModels, savedRoles := models, roles
	t.Cleanup(func() { models, roles = savedModels, savedRoles })

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roles:
  - name: admin
    permitted_models: [claude-opus-4-20250514]
`), 0o600))

	assert.Error(t, LoadFile(path))
}

func TestLoadFile_MissingFile(t *testing.T) {
	assert.Error(t, LoadFile("/nonexistent/catalog.yaml"))
}
