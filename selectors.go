package sleuth

import (
	"fmt"
	"time"
)

// SchemaVersion is written into every persisted selector file. Bump it when
// the on-disk shape changes incompatibly.
const SchemaVersion = "1.0"

// The five semantic fields a selector set covers. The field set is closed:
// anything else coming back from discovery is rejected before it can reach
// the cache.
const (
	FieldHeadline       = "headline"
	FieldAuthor         = "author"
	FieldDate           = "date"
	FieldBodyText       = "body_text"
	FieldRelatedContent = "related_content"
)

// Fields returns the recognized field names in canonical order.
func Fields() []string {
	return []string{FieldHeadline, FieldAuthor, FieldDate, FieldBodyText, FieldRelatedContent}
}

// Tier names a selector priority level. TierNone is only valid as a
// working priority, never as a candidate slot.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
	TierTertiary Tier = "tertiary"
	TierNone     Tier = "none"
)

// Tiers returns the candidate tiers in decreasing specificity, the order in
// which the verifier tries them.
func Tiers() []Tier {
	return []Tier{TierPrimary, TierFallback, TierTertiary}
}

// FieldSelectors holds the tiered selector candidates for one semantic
// field. A nil tier means the model judged the field not applicable at that
// specificity; this is distinct from an empty selector string, which is
// never stored.
type FieldSelectors struct {
	Primary  *string `json:"primary"`
	Fallback *string `json:"fallback"`
	Tertiary *string `json:"tertiary"`
	// WorkingPriority names the first tier whose selector matched the live
	// document, or TierNone when no tier matched. Only meaningful once
	// Tested is true.
	WorkingPriority Tier `json:"working_priority"`
	Tested          bool `json:"tested"`
}

// Candidate returns the selector stored at the given tier, or nil when the
// tier is not applicable.
func (fs *FieldSelectors) Candidate(tier Tier) *string {
	switch tier {
	case TierPrimary:
		return fs.Primary
	case TierFallback:
		return fs.Fallback
	case TierTertiary:
		return fs.Tertiary
	}
	return nil
}

// Working returns the selector named by WorkingPriority, or nil when the
// field is untested or no tier matched.
func (fs *FieldSelectors) Working() *string {
	if !fs.Tested || fs.WorkingPriority == TierNone {
		return nil
	}
	return fs.Candidate(fs.WorkingPriority)
}

// validate enforces the invariant that a tested field's working priority
// names a non-empty tier or is TierNone.
func (fs *FieldSelectors) validate() error {
	switch fs.WorkingPriority {
	case TierPrimary, TierFallback, TierTertiary:
		if fs.Tested && fs.Candidate(fs.WorkingPriority) == nil {
			return fmt.Errorf("working priority %q names an empty tier", fs.WorkingPriority)
		}
	case TierNone, "":
	default:
		return fmt.Errorf("unknown working priority %q", fs.WorkingPriority)
	}
	return nil
}

// SelectorSet is the verified selector bundle for one domain. It is created
// by the discovery agent, enriched in place by the verifier, and persisted
// by the cache store. It is never partially written: either the fully
// verified set is committed or nothing is.
type SelectorSet struct {
	Domain        string                     `json:"domain"`
	SourceURL     string                     `json:"source_url"`
	DiscoveredAt  time.Time                  `json:"discovered_at"`
	SchemaVersion string                     `json:"schema_version"`
	Selectors     map[string]*FieldSelectors `json:"selectors"`
}

// NewSelectorSet creates an unverified selector set covering exactly the
// recognized fields. Fields missing from candidates get an empty entry.
func NewSelectorSet(domain, sourceURL string) *SelectorSet {
	selectors := make(map[string]*FieldSelectors, len(Fields()))
	for _, field := range Fields() {
		selectors[field] = &FieldSelectors{WorkingPriority: TierNone}
	}
	return &SelectorSet{
		Domain:        domain,
		SourceURL:     sourceURL,
		DiscoveredAt:  time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Selectors:     selectors,
	}
}

// Validate checks the closed-field invariant: the selector map contains
// exactly the five recognized fields and every field satisfies the
// working-priority invariant. Used on both the discovery boundary and
// cache reads.
func (s *SelectorSet) Validate() error {
	if s.Domain == "" {
		return fmt.Errorf("selector set has no domain")
	}
	if len(s.Selectors) != len(Fields()) {
		return fmt.Errorf("selector set has %d fields, want %d", len(s.Selectors), len(Fields()))
	}
	for _, field := range Fields() {
		fs, ok := s.Selectors[field]
		if !ok || fs == nil {
			return fmt.Errorf("selector set missing field %q", field)
		}
		if err := fs.validate(); err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
	}
	return nil
}

// Verified reports whether every field has been run through the verifier.
func (s *SelectorSet) Verified() bool {
	for _, field := range Fields() {
		fs, ok := s.Selectors[field]
		if !ok || !fs.Tested {
			return false
		}
	}
	return true
}

// WorkingFields returns the names of fields that verified with at least one
// matching tier, in canonical order.
func (s *SelectorSet) WorkingFields() []string {
	var working []string
	for _, field := range Fields() {
		if fs, ok := s.Selectors[field]; ok && fs.Working() != nil {
			working = append(working, field)
		}
	}
	return working
}
