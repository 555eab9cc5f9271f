package sleuth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// TestNewSelectorSet_CoversAllFields verifies a fresh set has exactly the
// recognized fields, all untested.
func TestNewSelectorSet_CoversAllFields(t *testing.T) {
	set := NewSelectorSet("example.com", "https://example.com/article")

	assert.Equal(t, "example.com", set.Domain)
	assert.Equal(t, SchemaVersion, set.SchemaVersion)
	assert.Len(t, set.Selectors, 5)

	for _, field := range Fields() {
		fs, ok := set.Selectors[field]
		require.True(t, ok, "field %q should exist", field)
		assert.False(t, fs.Tested)
		assert.Equal(t, TierNone, fs.WorkingPriority)
	}
}

// TestSelectorSet_Validate_RejectsExtraField verifies the closed-field
// invariant.
func TestSelectorSet_Validate_RejectsExtraField(t *testing.T) {
	set := NewSelectorSet("example.com", "https://example.com")
	set.Selectors["summary"] = &FieldSelectors{}

	err := set.Validate()
	assert.Error(t, err)
}

// TestSelectorSet_Validate_RejectsMissingField verifies a dropped field fails
// validation.
func TestSelectorSet_Validate_RejectsMissingField(t *testing.T) {
	set := NewSelectorSet("example.com", "https://example.com")
	delete(set.Selectors, FieldAuthor)

	err := set.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "5")
}

// TestSelectorSet_Validate_RejectsEmptyWorkingTier verifies a tested field
// cannot claim a working priority whose tier holds no selector.
func TestSelectorSet_Validate_RejectsEmptyWorkingTier(t *testing.T) {
	set := NewSelectorSet("example.com", "https://example.com")
	set.Selectors[FieldHeadline].Tested = true
	set.Selectors[FieldHeadline].WorkingPriority = TierPrimary // but Primary is nil

	err := set.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "headline")
}

// TestSelectorSet_Validate_RejectsNoDomain verifies the domain is required.
func TestSelectorSet_Validate_RejectsNoDomain(t *testing.T) {
	set := NewSelectorSet("", "https://example.com")
	assert.Error(t, set.Validate())
}

// TestFieldSelectors_Working verifies the working selector resolution rules.
func TestFieldSelectors_Working(t *testing.T) {
	fs := &FieldSelectors{
		Primary:  strPtr("h1.title"),
		Fallback: strPtr("h1"),
	}

	// Untested fields never report a working selector.
	fs.WorkingPriority = TierPrimary
	fs.Tested = false
	assert.Nil(t, fs.Working())

	fs.Tested = true
	require.NotNil(t, fs.Working())
	assert.Equal(t, "h1.title", *fs.Working())

	fs.WorkingPriority = TierFallback
	require.NotNil(t, fs.Working())
	assert.Equal(t, "h1", *fs.Working())

	fs.WorkingPriority = TierNone
	assert.Nil(t, fs.Working())
}

// TestSelectorSet_WorkingFields verifies only fields with a matching tier are
// reported, in canonical order.
func TestSelectorSet_WorkingFields(t *testing.T) {
	set := NewSelectorSet("example.com", "https://example.com")
	for _, field := range Fields() {
		set.Selectors[field].Tested = true
	}

	set.Selectors[FieldDate].Primary = strPtr("time")
	set.Selectors[FieldDate].WorkingPriority = TierPrimary
	set.Selectors[FieldHeadline].Fallback = strPtr("h1")
	set.Selectors[FieldHeadline].WorkingPriority = TierFallback

	assert.Equal(t, []string{FieldHeadline, FieldDate}, set.WorkingFields())
}

// TestSelectorSet_JSONShape verifies null tiers round-trip as JSON null, the
// shape consumers of the cache files depend on.
func TestSelectorSet_JSONShape(t *testing.T) {
	set := NewSelectorSet("example.com", "https://example.com")
	set.Selectors[FieldHeadline].Primary = strPtr("h1.title")
	set.Selectors[FieldHeadline].Tested = true
	set.Selectors[FieldHeadline].WorkingPriority = TierPrimary

	data, err := json.Marshal(set)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	selectors := raw["selectors"].(map[string]any)
	headline := selectors["headline"].(map[string]any)
	assert.Equal(t, "h1.title", headline["primary"])
	assert.Nil(t, headline["fallback"], "absent tier should serialize as null")
	assert.Equal(t, "primary", headline["working_priority"])
	assert.Equal(t, true, headline["tested"])
}
