package registration

import (
	"sort"
	"strings"
	"sync"
)

// MemoryHive is an in-memory Hive. Paths compare case-insensitively like
// the real registry.
type MemoryHive struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewMemoryHive creates an empty MemoryHive.
func NewMemoryHive() *MemoryHive {
	return &MemoryHive{values: make(map[string]map[string]string)}
}

// SetKey creates path and its parents.
func (h *MemoryHive) SetKey(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.createLocked(path)
}

// SetString creates path and stores a string value; name "" is the default value.
func (h *MemoryHive) SetString(path, name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.createLocked(path)[strings.ToLower(name)] = value
}

// DeleteKey removes path and everything below it.
func (h *MemoryHive) DeleteKey(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prefix := normalizeKey(path)

	for key := range h.values {
		if key == prefix || strings.HasPrefix(key, prefix+`\`) {
			delete(h.values, key)
		}
	}
}

// KeyExists implements Hive.
func (h *MemoryHive) KeyExists(path string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, found := h.values[normalizeKey(path)]

	return found, nil
}

// StringValue implements Hive.
func (h *MemoryHive) StringValue(path, name string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	values, found := h.values[normalizeKey(path)]
	if !found {
		return "", ErrKeyNotFound
	}

	value, found := values[strings.ToLower(name)]
	if !found {
		return "", ErrKeyNotFound
	}

	return value, nil
}

// SubKeyNames implements Hive.
func (h *MemoryHive) SubKeyNames(path string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	parent := normalizeKey(path)
	if _, found := h.values[parent]; !found {
		return nil, ErrKeyNotFound
	}

	var names []string

	for key := range h.values {
		rest, found := strings.CutPrefix(key, parent+`\`)
		if found && !strings.Contains(rest, `\`) {
			names = append(names, rest)
		}
	}

	sort.Strings(names)

	return names, nil
}

func (h *MemoryHive) createLocked(path string) map[string]string {
	key := normalizeKey(path)

	for parent := key; parent != ""; {
		if _, found := h.values[parent]; !found {
			h.values[parent] = make(map[string]string)
		}

		index := strings.LastIndex(parent, `\`)
		if index < 0 {
			break
		}

		parent = parent[:index]
	}

	return h.values[key]
}

func normalizeKey(path string) string {
	return strings.ToLower(strings.Trim(path, `\`))
}
