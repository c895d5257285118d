package retrieval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynonymsExpander_Expand(t *testing.T) {
	e := NewSynonymsExpander(map[string][]string{
		"cet1": {"Common Equity Tier 1", "common-equity tier 1"},
		"t2":   {"tier 2"},
	})
	require.NotNil(t, e)

	assert.Equal(t, []string{"common equity tier 1"}, e.Expand("How is CET1 computed?"))
	assert.Equal(t, []string{"cet1"}, e.Expand("common equity tier 1 deductions"))
	assert.Equal(t, []string{"tier 2"}, e.Expand("T2 instruments"))
	assert.Nil(t, e.Expand("at2b instruments"))
	assert.Nil(t, e.Expand("   "))

	var nilExpander *SynonymsExpander
	assert.Nil(t, nilExpander.Expand("cet1"))
}

func TestNewSynonymsExpander_Empty(t *testing.T) {
	assert.Nil(t, NewSynonymsExpander(nil))
	assert.Nil(t, NewSynonymsExpander(map[string][]string{"alone": nil}))
}

func TestLoadSynonymsFile(t *testing.T) {
	e, err := LoadSynonymsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"additional tier 1"}, e.Expand("at1 coupons"))

	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nsynonyms:\n  mrel:\n    - minimum requirement for own funds and eligible liabilities\n"), 0644))

	e, err = LoadSynonymsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"minimum requirement for own funds and eligible liabilities"}, e.Expand("MREL"))
	// Defaults are kept alongside file entries
	assert.Equal(t, []string{"additional tier 1"}, e.Expand("at1"))

	require.NoError(t, os.WriteFile(path, []byte("synonyms: [unclosed"), 0644))
	_, err = LoadSynonymsFile(path)
	assert.Error(t, err)
}
