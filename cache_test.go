package sleuth

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: create a cache store in a temp dir.
func createTestCacheStore(t *testing.T) (*CacheStore, string) {
	dir := t.TempDir()
	store, err := NewCacheStore(dir, nil)
	require.NoError(t, err, "should create cache store")
	return store, dir
}

// Test helper: a minimal verified selector set.
func verifiedSet(domain string) *SelectorSet {
	set := NewSelectorSet(domain, "https://"+domain+"/article")
	for _, field := range Fields() {
		set.Selectors[field].Tested = true
	}
	set.Selectors[FieldHeadline].Primary = strPtr("h1.title")
	set.Selectors[FieldHeadline].WorkingPriority = TierPrimary
	return set
}

// TestDomainFromURL verifies domain derivation: lowercase host, www stripped,
// path ignored.
func TestDomainFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.Example.com/news/story?a=1", "example.com"},
		{"https://example.com/other/path", "example.com"},
		{"http://sub.example.co.uk:8080/x", "sub.example.co.uk"},
	}
	for _, tt := range tests {
		got, err := DomainFromURL(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}

	_, err := DomainFromURL("not-a-url")
	assert.Error(t, err)
}

// TestCacheStore_LoadMissing verifies a missing entry is (nil, nil).
func TestCacheStore_LoadMissing(t *testing.T) {
	store, _ := createTestCacheStore(t)

	set, err := store.Load("never-seen.com")
	require.NoError(t, err)
	assert.Nil(t, set)
	assert.False(t, store.Has("never-seen.com"))
}

// TestCacheStore_SaveAndLoad verifies the round trip preserves the set.
func TestCacheStore_SaveAndLoad(t *testing.T) {
	store, dir := createTestCacheStore(t)

	set := verifiedSet("example.com")
	require.NoError(t, store.Save("example.com", set))

	// The file name encodes the domain with dots replaced.
	_, err := os.Stat(filepath.Join(dir, "selectors_example_com.json"))
	assert.NoError(t, err)

	loaded, err := store.Load("example.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "example.com", loaded.Domain)
	assert.Equal(t, TierPrimary, loaded.Selectors[FieldHeadline].WorkingPriority)
	require.NotNil(t, loaded.Selectors[FieldHeadline].Primary)
	assert.Equal(t, "h1.title", *loaded.Selectors[FieldHeadline].Primary)
	assert.Nil(t, loaded.Selectors[FieldAuthor].Primary)
}

// TestCacheStore_SaveRefusesInvalid verifies a malformed set never reaches
// disk.
func TestCacheStore_SaveRefusesInvalid(t *testing.T) {
	store, _ := createTestCacheStore(t)

	set := verifiedSet("example.com")
	delete(set.Selectors, FieldDate)

	err := store.Save("example.com", set)
	assert.Error(t, err)
	assert.False(t, store.Has("example.com"))
}

// TestCacheStore_SaveOverwrites verifies force-style re-discovery replaces
// the stored entry.
func TestCacheStore_SaveOverwrites(t *testing.T) {
	store, _ := createTestCacheStore(t)

	first := verifiedSet("example.com")
	require.NoError(t, store.Save("example.com", first))

	second := verifiedSet("example.com")
	second.Selectors[FieldHeadline].Primary = strPtr("h1.updated")
	require.NoError(t, store.Save("example.com", second))

	loaded, err := store.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, "h1.updated", *loaded.Selectors[FieldHeadline].Primary)
}

// TestCacheStore_CorruptEntryIsMiss verifies damaged JSON heals itself by
// reading as a miss instead of an error.
func TestCacheStore_CorruptEntryIsMiss(t *testing.T) {
	store, dir := createTestCacheStore(t)

	path := filepath.Join(dir, "selectors_broken_com.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	set, err := store.Load("broken.com")
	require.NoError(t, err)
	assert.Nil(t, set)
}

// TestCacheStore_SchemaInvalidEntryIsMiss verifies well-formed JSON that
// violates the schema also reads as a miss.
func TestCacheStore_SchemaInvalidEntryIsMiss(t *testing.T) {
	store, dir := createTestCacheStore(t)

	path := filepath.Join(dir, "selectors_partial_com.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"domain":"partial.com","selectors":{}}`), 0o644))

	set, err := store.Load("partial.com")
	require.NoError(t, err)
	assert.Nil(t, set)
}

// TestCacheStore_Domains verifies listing is sorted and reports the domain
// stored inside each entry.
func TestCacheStore_Domains(t *testing.T) {
	store, _ := createTestCacheStore(t)

	require.NoError(t, store.Save("zeta.org", verifiedSet("zeta.org")))
	require.NoError(t, store.Save("alpha.com", verifiedSet("alpha.com")))

	domains, err := store.Domains()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.com", "zeta.org"}, domains)
}

// TestCacheStore_Domains_UnderscoreHost verifies a host that itself contains
// an underscore lists verbatim; the file name encoding collapses dots and
// underscores, so the listing must not decode names.
func TestCacheStore_Domains_UnderscoreHost(t *testing.T) {
	store, _ := createTestCacheStore(t)

	require.NoError(t, store.Save("my_site.example.com", verifiedSet("my_site.example.com")))

	domains, err := store.Domains()
	require.NoError(t, err)
	assert.Equal(t, []string{"my_site.example.com"}, domains)
}

// TestCacheStore_Summarize verifies aggregation counts working fields per
// domain.
func TestCacheStore_Summarize(t *testing.T) {
	store, _ := createTestCacheStore(t)

	a := verifiedSet("a.com")
	require.NoError(t, store.Save("a.com", a))

	b := verifiedSet("b.com")
	b.Selectors[FieldDate].Primary = strPtr("time")
	b.Selectors[FieldDate].WorkingPriority = TierPrimary
	require.NoError(t, store.Save("b.com", b))

	summary, err := store.Summarize()
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalDomains)
	assert.Equal(t, 2, summary.FieldCoverage[FieldHeadline])
	assert.Equal(t, 1, summary.FieldCoverage[FieldDate])
	assert.Equal(t, 0, summary.FieldCoverage[FieldAuthor])
	assert.Len(t, summary.Domains, 2)
}

// TestCacheStore_ConcurrentSaves verifies parallel writers to one domain
// leave a readable entry behind.
func TestCacheStore_ConcurrentSaves(t *testing.T) {
	store, _ := createTestCacheStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Save("example.com", verifiedSet("example.com"))
		}()
	}
	wg.Wait()

	loaded, err := store.Load("example.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.NoError(t, loaded.Validate())
}
