package policy

import (
	"embed"
	"fmt"
	"sort"
)

// Bundled packs ship with the SDK so evaluation never depends on the
// hosted registry being reachable. They are ordinary bundle documents,
// parsed and compiled through the same path as external bundles.
//
//go:embed bundles/*.json
var bundledFS embed.FS

func bundledPacks() ([]*Pack, error) {
	entries, err := bundledFS.ReadDir("bundles")
	if err != nil {
		return nil, fmt.Errorf("policy: bundled packs: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	packs := make([]*Pack, 0, len(names))
	for _, name := range names {
		data, err := bundledFS.ReadFile("bundles/" + name)
		if err != nil {
			return nil, fmt.Errorf("policy: bundled pack %s: %w", name, err)
		}
		bundle, err := ParseBundle(data)
		if err != nil {
			return nil, fmt.Errorf("policy: bundled pack %s: %w", name, err)
		}
		pack, err := bundle.Build()
		if err != nil {
			return nil, fmt.Errorf("policy: bundled pack %s: %w", name, err)
		}
		packs = append(packs, pack)
	}
	return packs, nil
}
