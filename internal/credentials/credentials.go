// Package credentials implements the cross-cutting credentials store: an
// in-memory map of per-device secrets with pluggable credential types,
// symmetric-encrypted fields and delayed-write file persistence.
package credentials

import (
	"fmt"
	"sort"
	"strings"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// Credentials is one entry in the store. Concrete types (Password, Pin,
// or user-registered ones) know how to serialize themselves into a
// configuration tree under root.<device>.<field>, with secret fields kept
// in their already-encrypted form.
type Credentials interface {
	// Type is the tag stored under root.<device>.type, used to select a
	// factory on load.
	Type() string

	// Params returns the cipher parameters this entry was encrypted with.
	Params() CryptoParams

	// Save writes this entry's fields into conf under root.<device>.
	Save(conf *ConfigTree, device beeeon.DeviceID, root string)
}

// Factory constructs a Credentials from the key/value view of one entry
// (type, params and the type's own fields, all relative to the entry).
type Factory func(view ConfigView) (Credentials, error)

// ConfigTree is a flat key/value configuration: dotted paths mapped to
// string values, one property per line on disk.
type ConfigTree struct {
	values map[string]string
}

func NewConfigTree() *ConfigTree {
	return &ConfigTree{values: make(map[string]string)}
}

func (t *ConfigTree) Set(key, value string) {
	t.values[key] = value
}

func (t *ConfigTree) Get(key string) (string, bool) {
	v, ok := t.values[key]
	return v, ok
}

// KeysAt returns the distinct first path segments found directly under
// root, sorted for deterministic iteration.
func (t *ConfigTree) KeysAt(root string) []string {
	prefix := root + "."
	seen := make(map[string]struct{})
	for key := range t.values {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		segment, _, _ := strings.Cut(rest, ".")
		seen[segment] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// View narrows the tree to everything under prefix, with the prefix
// stripped off.
func (t *ConfigTree) View(prefix string) ConfigView {
	return ConfigView{tree: t, prefix: prefix + "."}
}

// Marshal renders the tree as one "key = value" line per property, sorted
// by key, the flat format the credentials file uses.
func (t *ConfigTree) Marshal() []byte {
	keys := make([]string, 0, len(t.values))
	for k := range t.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, t.values[k])
	}
	return []byte(b.String())
}

// UnmarshalConfig parses the on-disk "key = value" format. Blank lines and
// #-comments are skipped; malformed lines are an error.
func UnmarshalConfig(data []byte) (*ConfigTree, error) {
	tree := NewConfigTree()
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("credentials: malformed line %d: %q", i+1, line)
		}
		tree.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return tree, nil
}

// ConfigView is a read view into one subtree of a ConfigTree.
type ConfigView struct {
	tree   *ConfigTree
	prefix string
}

func (v ConfigView) Get(key string) (string, bool) {
	return v.tree.Get(v.prefix + key)
}

func (v ConfigView) MustGet(key string) (string, error) {
	s, ok := v.Get(key)
	if !ok {
		return "", fmt.Errorf("credentials: missing field %q", key)
	}
	return s, nil
}

func entryKey(root string, device beeeon.DeviceID, field string) string {
	return fmt.Sprintf("%s.%s.%s", root, device, field)
}

// viewParams is the shared part of every factory: parse the entry's
// "params" field back into CryptoParams.
func viewParams(view ConfigView) (CryptoParams, error) {
	s, err := view.MustGet("params")
	if err != nil {
		return CryptoParams{}, err
	}
	return ParseParams(s)
}
