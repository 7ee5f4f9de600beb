package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/mherren/voxbot/internal/repository"
	"github.com/mherren/voxbot/lib/logger/sl"
)

// NameRejectedError reports which filter rule a proposed room name tripped.
type NameRejectedError struct {
	Pattern string
}

func (e *NameRejectedError) Error() string {
	return "name rejected by filter: " + e.Pattern
}

type guildFilter struct {
	pattern string
	re      *regexp.Regexp
}

// NameFilterManager validates proposed room names against per-guild ordered
// pattern lists. Matching is case-insensitive; rules are evaluated in
// insertion order and the first match wins.
type NameFilterManager struct {
	repo repository.FilterRepository
	log  *slog.Logger

	mu     sync.RWMutex
	guilds map[string][]guildFilter
}

func NewNameFilterManager(repo repository.FilterRepository, log *slog.Logger) *NameFilterManager {
	if log == nil {
		log = slog.Default()
	}
	return &NameFilterManager{
		repo:   repo,
		log:    log,
		guilds: make(map[string][]guildFilter),
	}
}

// LoadAll hydrates filters from storage. Patterns that no longer compile are
// skipped with a warning instead of poisoning the rest of the guild's list.
func (m *NameFilterManager) LoadAll(ctx context.Context) error {
	const op = "service.namefilter.loadAll"

	stored, err := m.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.guilds = make(map[string][]guildFilter, len(stored))
	for guildID, patterns := range stored {
		for _, pattern := range patterns {
			re, err := compileFilter(pattern)
			if err != nil {
				m.log.Warn("skipping unparseable name filter",
					slog.String("guild_id", guildID),
					slog.String("pattern", pattern),
					sl.Err(err),
				)
				continue
			}
			m.guilds[guildID] = append(m.guilds[guildID], guildFilter{pattern: pattern, re: re})
		}
	}
	return nil
}

// Validate returns nil if the name passes, or a NameRejectedError naming the
// first rule that matched. Given the same filter list and name the result is
// always the same.
func (m *NameFilterManager) Validate(guildID, name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, filter := range m.guilds[guildID] {
		if filter.re.MatchString(name) {
			return &NameRejectedError{Pattern: filter.pattern}
		}
	}
	return nil
}

// AddFilter toggles a pattern: appends it if absent, removes it if already
// present. Reports whether the pattern ended up added.
func (m *NameFilterManager) AddFilter(ctx context.Context, guildID, pattern string) (bool, error) {
	const op = "service.namefilter.addFilter"

	re, err := compileFilter(pattern)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	filters := m.guilds[guildID]
	added := true
	for i, filter := range filters {
		if filter.pattern == pattern {
			filters = append(filters[:i], filters[i+1:]...)
			added = false
			break
		}
	}
	if added {
		filters = append(filters, guildFilter{pattern: pattern, re: re})
	}

	if len(filters) == 0 {
		delete(m.guilds, guildID)
	} else {
		m.guilds[guildID] = filters
	}

	patterns := make([]string, 0, len(filters))
	for _, filter := range filters {
		patterns = append(patterns, filter.pattern)
	}
	if err := m.repo.Save(ctx, guildID, patterns); err != nil {
		return added, fmt.Errorf("%s: %w", op, err)
	}
	return added, nil
}

func (m *NameFilterManager) ListFilters(guildID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filters := m.guilds[guildID]
	patterns := make([]string, 0, len(filters))
	for _, filter := range filters {
		patterns = append(patterns, filter.pattern)
	}
	return patterns
}

func compileFilter(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
