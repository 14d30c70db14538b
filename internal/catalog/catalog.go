// Package catalog holds the deduplicated set of products announced on the feed.
package catalog

import (
	"sort"
	"time"

	"github.com/couchcryptid/storm-data-layers/internal/domain"
)

// Entry is a deduplicated announcement. Identity fields never change after
// insertion; UUID, File and ReceivedAt follow the latest announcement.
type Entry struct {
	domain.ProductAnnouncement
	ReceivedAt time.Time `json:"receivedAt"`
}

// PartialKey matches catalog entries. Empty strings and nil times are
// wildcards.
type PartialKey struct {
	Type         domain.ProductType
	ModelName    string
	ModelSource  string
	Location     string
	Parameter    string
	Level        string
	ForecastTime *int64
	ModelTime    *int64
	Name         string
}

// KeyFromAnnouncement builds a partial key from the set fields of a (removal)
// announcement. Zero times are treated as unset.
func KeyFromAnnouncement(a domain.ProductAnnouncement) PartialKey {
	k := PartialKey{
		Type:        a.Type,
		ModelName:   a.ModelName,
		ModelSource: a.ModelSource,
		Location:    a.Location,
		Parameter:   a.Parameter,
		Level:       a.Level,
		Name:        a.Name,
	}
	if a.ForecastTime != 0 {
		ft := a.ForecastTime
		k.ForecastTime = &ft
	}
	if a.ModelTime != 0 {
		mt := a.ModelTime
		k.ModelTime = &mt
	}
	return k
}

// Empty reports whether the key has no set fields.
func (k PartialKey) Empty() bool {
	return k == PartialKey{}
}

// Matches reports whether id agrees with every set field of k.
func (k PartialKey) Matches(id domain.Identity) bool {
	switch {
	case k.Type != "" && k.Type != id.Type:
		return false
	case k.ModelName != "" && k.ModelName != id.ModelName:
		return false
	case k.ModelSource != "" && k.ModelSource != id.ModelSource:
		return false
	case k.Location != "" && k.Location != id.Location:
		return false
	case k.Parameter != "" && k.Parameter != id.Parameter:
		return false
	case k.Level != "" && k.Level != id.Level:
		return false
	case k.ForecastTime != nil && *k.ForecastTime != id.ForecastTime:
		return false
	case k.ModelTime != nil && *k.ModelTime != id.ModelTime:
		return false
	case k.Name != "" && k.Name != id.Name:
		return false
	}
	return true
}

// Catalog is the in-memory product catalog. It is not safe for concurrent use;
// the pipeline owner loop serializes access.
type Catalog struct {
	entries map[string]*Entry
	now     func() time.Time
}

// New creates an empty catalog. Receipt times come from domain.Now.
func New() *Catalog {
	return &Catalog{
		entries: make(map[string]*Entry),
		now:     domain.Now,
	}
}

// Upsert inserts the announcement, or replaces the mutable fields of the
// existing entry with the same composite identity. It returns true when a new
// entry was inserted. Malformed announcements are rejected with a
// *domain.ValidationError and leave the catalog unchanged.
func (c *Catalog) Upsert(a domain.ProductAnnouncement) (Entry, bool, error) {
	if err := a.Validate(); err != nil {
		return Entry{}, false, err
	}
	if a.IsRemoval() {
		return Entry{}, false, &domain.ValidationError{Field: "action", Reason: "removal announcements cannot be upserted"}
	}

	key := a.Identity().String()
	if e, ok := c.entries[key]; ok {
		e.UUID = a.UUID
		e.File = a.File
		e.ReceivedAt = c.now()
		return *e, false, nil
	}

	a.Action = ""
	e := &Entry{ProductAnnouncement: a, ReceivedAt: c.now()}
	c.entries[key] = e
	return *e, true, nil
}

// RemoveMatching removes every entry matched by k and returns the removed
// entries sorted by identity. An empty key removes nothing.
func (c *Catalog) RemoveMatching(k PartialKey) []Entry {
	if k.Empty() {
		return nil
	}
	var removed []Entry
	for key, e := range c.entries {
		if k.Matches(e.Identity()) {
			removed = append(removed, *e)
			delete(c.entries, key)
		}
	}
	sortEntries(removed)
	return removed
}

// Find returns the entries matched by k sorted by identity. An empty key
// matches everything.
func (c *Catalog) Find(k PartialKey) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if k.Matches(e.Identity()) {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out
}

// Get returns the entry stored under id.
func (c *Catalog) Get(id domain.Identity) (Entry, bool) {
	e, ok := c.entries[id.String()]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns a snapshot of all entries sorted by identity.
func (c *Catalog) Entries() []Entry {
	return c.Find(PartialKey{})
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Reset removes every entry.
func (c *Catalog) Reset() {
	c.entries = make(map[string]*Entry)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identity().String() < entries[j].Identity().String()
	})
}
