package infrastructure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affrollup/internal/domain"
)

const singleArsenalYAML = `
id: main
name: Main arsenal
isActive: true
config:
  autoGroupUngrouped: true
customGroups:
  - id: men-balance
    name: Men Balance
    order: 1
    isActive: true
    matchRules:
      - type: contains
        value: men balance
    offers:
      - id: up1
        name: Upsell 1
        offerType: UPSELL
        order: 1
        matchRules:
          - type: contains
            value: upsell
            caseSensitive: false
`

func TestDecodeArsenals_Single(t *testing.T) {
	list, err := DecodeArsenals([]byte(singleArsenalYAML))
	require.NoError(t, err)
	require.Len(t, list, 1)

	a := list[0]
	assert.Equal(t, "main", a.ID)
	assert.True(t, a.IsActive)
	assert.True(t, a.Config.AutoGroupUngrouped)
	require.Len(t, a.CustomGroups, 1)
	g := a.CustomGroups[0]
	assert.Equal(t, domain.MatchContains, g.MatchRules[0].Type)
	require.Len(t, g.Offers, 1)
	assert.Equal(t, domain.OfferUpsell, g.Offers[0].OfferType)
}

func TestDecodeArsenals_List(t *testing.T) {
	raw := []byte(`
arsenals:
  - id: one
    name: One
  - id: two
    name: Two
    isActive: true
`)
	list, err := DecodeArsenals(raw)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[1].ID)
	assert.True(t, list[1].IsActive)
}

func TestDecodeArsenals_Invalid(t *testing.T) {
	_, err := DecodeArsenals([]byte(""))
	assert.ErrorIs(t, err, domain.ErrInvalidArsenal)

	_, err = DecodeArsenals([]byte("name: x\nunknownField: 1\n"))
	assert.Error(t, err)
}

func TestLoadArsenalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arsenal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(singleArsenalYAML), 0o600))

	list, err := LoadArsenalFile(path)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = LoadArsenalFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
