package sleuth

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CacheStore persists one verified SelectorSet per domain as a JSON file.
// It is the only component that writes selector data to disk. Writes are
// atomic with respect to crash (temp file + rename) and serialized per
// domain, so two batch workers discovering the same domain cannot
// interleave partial writes.
type CacheStore struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCacheStore creates the store, creating dir if needed.
func NewCacheStore(dir string, logger *zap.Logger) (*CacheStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &CacheError{Op: "init", Domain: "", Err: err}
	}
	return &CacheStore{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// DomainFromURL derives the cache key for a URL: the host component,
// lowercased, with any leading "www." stripped, so every URL on a site
// shares one cache entry regardless of path.
func DomainFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", fmt.Errorf("URL %q has no host", rawURL)
	}
	return host, nil
}

// filename maps a domain to its selector file, dots replaced so the name is
// filesystem-safe everywhere.
func (c *CacheStore) filename(domain string) string {
	safe := strings.NewReplacer(".", "_", "/", "_").Replace(domain)
	return filepath.Join(c.dir, "selectors_"+safe+".json")
}

// domainLock returns the write mutex for a domain, creating it on first use.
func (c *CacheStore) domainLock(domain string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[domain]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[domain] = lock
	}
	return lock
}

// Has reports whether a cache entry exists for the domain. It does not
// check whether the entry is readable.
func (c *CacheStore) Has(domain string) bool {
	_, err := os.Stat(c.filename(domain))
	return err == nil
}

// Load reads the persisted selector set for a domain. A missing entry
// returns (nil, nil). A corrupt or schema-invalid entry is treated as a
// cache miss, not an error, so a damaged file triggers re-discovery
// instead of wedging the tool.
func (c *CacheStore) Load(domain string) (*SelectorSet, error) {
	data, err := os.ReadFile(c.filename(domain))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &CacheError{Op: "load", Domain: domain, Err: err}
	}

	var set SelectorSet
	if err := json.Unmarshal(data, &set); err != nil {
		c.logger.Warn("corrupt cache entry, treating as miss",
			zap.String("domain", domain), zap.Error(err))
		return nil, nil
	}
	if err := set.Validate(); err != nil {
		c.logger.Warn("invalid cache entry, treating as miss",
			zap.String("domain", domain), zap.Error(err))
		return nil, nil
	}
	return &set, nil
}

// Save atomically persists a fully verified selector set, overwriting any
// prior entry for the domain. A set that fails validation is refused so a
// malformed set can never reach disk.
func (c *CacheStore) Save(domain string, set *SelectorSet) error {
	if err := set.Validate(); err != nil {
		return &CacheError{Op: "save", Domain: domain, Err: err}
	}

	lock := c.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return &CacheError{Op: "save", Domain: domain, Err: err}
	}

	// Write to a temp file in the same directory, then rename into place.
	// Rename within one filesystem is atomic, so Load never observes a
	// partially written entry.
	tmp, err := os.CreateTemp(c.dir, "selectors_*.tmp")
	if err != nil {
		return &CacheError{Op: "save", Domain: domain, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &CacheError{Op: "save", Domain: domain, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &CacheError{Op: "save", Domain: domain, Err: err}
	}
	if err := os.Rename(tmpName, c.filename(domain)); err != nil {
		os.Remove(tmpName)
		return &CacheError{Op: "save", Domain: domain, Err: err}
	}
	return nil
}

// Domains lists every domain with a stored entry, sorted. The domain
// recorded inside each file is authoritative: the file name encoding is not
// reversible, since an underscore in a host cannot be told apart from an
// encoded dot. Unreadable entries are skipped, matching Load.
func (c *CacheStore) Domains() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, &CacheError{Op: "summary", Domain: "", Err: err}
	}
	var domains []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "selectors_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, name))
		if err != nil {
			continue
		}
		var set SelectorSet
		if err := json.Unmarshal(data, &set); err != nil || set.Domain == "" {
			c.logger.Warn("skipping unreadable cache entry", zap.String("file", name))
			continue
		}
		domains = append(domains, set.Domain)
	}
	sort.Strings(domains)
	return domains, nil
}

// DomainSummary is the read-only per-domain view used by the summary
// reporter.
type DomainSummary struct {
	Domain        string    `json:"domain"`
	DiscoveredAt  time.Time `json:"discovered_at"`
	WorkingFields []string  `json:"working_fields"`
}

// Summary is the read-only aggregation across all stored entries.
type Summary struct {
	TotalDomains  int             `json:"total_domains"`
	FieldCoverage map[string]int  `json:"field_coverage"`
	Domains       []DomainSummary `json:"domains"`
}

// Summarize aggregates the stored entries: domain count and per-field
// coverage (how many domains verified each field). Unreadable entries are
// skipped, matching Load's self-healing behavior.
func (c *CacheStore) Summarize() (*Summary, error) {
	domains, err := c.Domains()
	if err != nil {
		return nil, err
	}

	summary := &Summary{FieldCoverage: make(map[string]int, len(Fields()))}
	for _, field := range Fields() {
		summary.FieldCoverage[field] = 0
	}

	for _, domain := range domains {
		set, err := c.Load(domain)
		if err != nil || set == nil {
			continue
		}
		working := set.WorkingFields()
		for _, field := range working {
			summary.FieldCoverage[field]++
		}
		summary.Domains = append(summary.Domains, DomainSummary{
			Domain:        set.Domain,
			DiscoveredAt:  set.DiscoveredAt,
			WorkingFields: working,
		})
	}
	summary.TotalDomains = len(summary.Domains)
	return summary, nil
}
