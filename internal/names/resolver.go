// Package names resolves opaque player identifiers to display names.
package names

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/blockstats-server/internal/allowlist"
	"github.com/blockstats-server/internal/domain"
)

// fallbackPrefixLen is how much of the identifier the placeholder keeps.
const fallbackPrefixLen = 8

// Resolver maps player identifiers to display names using the server's
// usercache directory, preferring allow-list casing for known players.
// Resolution never fails: an unknown identifier degrades to a stable
// placeholder instead of aborting a scan.
type Resolver struct {
	usercachePath string
	allow         *allowlist.Store
	logger        *slog.Logger

	mu   sync.RWMutex
	byID map[string]string // normalized identifier -> directory name
}

// NewResolver creates a Resolver over the given usercache file and
// allow-list. The directory starts empty; call Reload to populate it.
func NewResolver(usercachePath string, allow *allowlist.Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		usercachePath: usercachePath,
		allow:         allow,
		logger:        logger,
		byID:          make(map[string]string),
	}
}

// Reload replaces the identifier directory from the usercache file.
// A missing or unreadable file leaves the directory empty with a warning.
func (r *Resolver) Reload() {
	byID := make(map[string]string)

	data, err := os.ReadFile(r.usercachePath)
	if err != nil {
		r.logger.Warn("usercache not readable, resolving to placeholders", "path", r.usercachePath, "error", err)
		r.replace(byID)
		return
	}

	var entries []domain.CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.Warn("usercache not parseable, resolving to placeholders", "path", r.usercachePath, "error", err)
		r.replace(byID)
		return
	}

	for _, entry := range entries {
		if entry.UUID == "" || entry.Name == "" {
			continue
		}
		// Last write wins so a renamed player keeps the newest entry.
		byID[NormalizeIdentifier(entry.UUID)] = entry.Name
	}

	r.replace(byID)
	r.logger.Debug("usercache reloaded", "path", r.usercachePath, "entries", len(byID))
}

func (r *Resolver) replace(byID map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = byID
}

// Resolve maps an identifier to a display name. Known players get their
// directory name, re-cased to the allow-list's canonical form when they
// match an entry case-insensitively. Unknown identifiers get the
// deterministic Player_<prefix> placeholder.
func (r *Resolver) Resolve(identifier string) string {
	r.mu.RLock()
	name, ok := r.byID[NormalizeIdentifier(identifier)]
	r.mu.RUnlock()

	if !ok {
		return FallbackName(identifier)
	}

	if r.allow.ContainsExact(name) {
		return name
	}
	if canonical, ok := r.allow.Canonical(name); ok {
		return canonical
	}
	return name
}

// NormalizeIdentifier strips separators and lowercases an identifier for
// comparison purposes only.
func NormalizeIdentifier(identifier string) string {
	if parsed, err := uuid.Parse(identifier); err == nil {
		return strings.ReplaceAll(parsed.String(), "-", "")
	}
	return strings.ToLower(strings.ReplaceAll(identifier, "-", ""))
}

// FallbackName derives the stable placeholder label for an identifier
// with no directory entry.
func FallbackName(identifier string) string {
	prefix := identifier
	if len(prefix) > fallbackPrefixLen {
		prefix = prefix[:fallbackPrefixLen]
	}
	return "Player_" + prefix
}
