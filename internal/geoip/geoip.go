// Package geoip indexes the country and category codes present in an MMDB
// database so GEOIP rule conditions can be checked against it.
package geoip

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oschwald/maxminddb-golang"
)

// Index is the set of codes known to a database.
type Index struct {
	mu    sync.RWMutex
	codes map[string]bool
}

// NewIndex returns an index holding codes.
func NewIndex(codes ...string) *Index {
	idx := &Index{codes: make(map[string]bool, len(codes))}
	for _, c := range codes {
		idx.codes[strings.ToUpper(c)] = true
	}
	return idx
}

// Load parses the MMDB bytes and replaces the index contents.
func (idx *Index) Load(data []byte) error {
	db, err := maxminddb.FromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to open mmdb: %w", err)
	}
	defer db.Close()

	codes := make(map[string]bool)
	iter := db.Networks(maxminddb.SkipAliasedNetworks)
	for iter.Next() {
		var record any
		if _, err := iter.Network(&record); err != nil {
			continue
		}
		if code := recordCode(record); code != "" {
			codes[strings.ToUpper(code)] = true
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("walk mmdb: %w", err)
	}

	idx.mu.Lock()
	idx.codes = codes
	idx.mu.Unlock()
	return nil
}

// recordCode extracts the code from the record layouts seen in the wild:
// a bare string (geoip-lite), {country: {iso_code}} (GeoLite2), or a flat
// {iso_code} / {code} map.
func recordCode(record any) string {
	switch v := record.(type) {
	case string:
		return v
	case map[string]any:
		if c, ok := v["country"].(map[string]any); ok {
			iso, _ := c["iso_code"].(string)
			return iso
		}
		if iso, ok := v["iso_code"].(string); ok {
			return iso
		}
		code, _ := v["code"].(string)
		return code
	}
	return ""
}

// Has reports whether code is present, ignoring case.
func (idx *Index) Has(code string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.codes[strings.ToUpper(code)]
}

// Len returns the number of distinct codes.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.codes)
}

// Unknown returns the codes absent from the index, deduplicated and sorted.
func (idx *Index) Unknown(codes []string) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, c := range codes {
		up := strings.ToUpper(c)
		if seen[up] || idx.Has(up) {
			continue
		}
		seen[up] = true
		missing = append(missing, up)
	}
	sort.Strings(missing)
	return missing
}
