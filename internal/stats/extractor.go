// Package stats parses one player's raw statistics record into mined and
// placed block totals.
package stats

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Vanilla stat categories this service reads.
const (
	categoryMined = "minecraft:mined"
	categoryUsed  = "minecraft:used"
)

// itemExclusions are substrings of "used" type identifiers that denote
// tools and consumables rather than placeable blocks. This is a
// heuristic block/item distinguisher, not a semantic type check; a use
// of minecraft:water_bucket is excluded, minecraft:stone is counted.
var itemExclusions = []string{"bucket", "sword", "axe", "shovel", "hoe", "pickaxe"}

// record is the subset of a per-player statistics file we care about.
// Counts are unsigned so a negative value fails the parse instead of
// silently skewing a total.
type record struct {
	Stats map[string]map[string]uint64 `json:"stats"`
}

// Extract parses a raw statistics record and returns the total blocks
// mined and placed. Missing categories count as zero. A parse error
// means the whole record should be skipped, not zero-filled.
func Extract(raw []byte) (mined, placed uint64, err error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0, 0, fmt.Errorf("parsing stat record: %w", err)
	}

	for _, count := range rec.Stats[categoryMined] {
		mined += count
	}

	for typeID, count := range rec.Stats[categoryUsed] {
		if CountsAsBlock(typeID) {
			placed += count
		}
	}

	return mined, placed, nil
}

// CountsAsBlock reports whether a "used" type identifier is treated as a
// placeable block: it must be namespaced and not look like a tool or
// consumable.
func CountsAsBlock(typeID string) bool {
	if !strings.Contains(typeID, ":") {
		return false
	}
	for _, excluded := range itemExclusions {
		if strings.Contains(typeID, excluded) {
			return false
		}
	}
	return true
}
