package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrUnknownPack is returned when a pack id is not registered.
	ErrUnknownPack = errors.New("policy: unknown pack id")
)

// ConfigurationError marks a pack that cannot be used with the running
// engine (incompatible version range, malformed bundle). Evaluation must
// not proceed with a silently-downgraded pack.
type ConfigurationError struct {
	PackID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("policy: pack %s configuration error: %s", e.PackID, e.Reason)
}

// Registry holds the packs available to the engine. Bundled packs are
// registered at construction; external bundles may be loaded on top.
// Registration refuses version rollback for an already-registered id.
type Registry struct {
	mu            sync.RWMutex
	packs         map[string]*Pack
	engineVersion *semver.Version
}

// NewRegistry creates a registry bound to an engine version and registers
// the bundled policy packs.
func NewRegistry(engineVersion string) (*Registry, error) {
	ev, err := semver.NewVersion(engineVersion)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid engine version %q: %w", engineVersion, err)
	}

	r := &Registry{
		packs:         make(map[string]*Pack),
		engineVersion: ev,
	}

	bundled, err := bundledPacks()
	if err != nil {
		return nil, err
	}
	for _, p := range bundled {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or upgrades a pack. Downgrades are refused: a registry
// never silently replaces a pack with an older version.
func (r *Registry) Register(pack *Pack) error {
	if pack == nil {
		return ErrNilPack
	}

	newV, err := pack.SemVer()
	if err != nil {
		return &ConfigurationError{PackID: pack.ID, Reason: err.Error()}
	}

	if !pack.CompatibleWith(r.engineVersion) {
		return &ConfigurationError{
			PackID: pack.ID,
			Reason: fmt.Sprintf("pack requires engine %s (running %s)", pack.engineConstraint, r.engineVersion),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.packs[pack.ID]; ok {
		curV, err := existing.SemVer()
		if err == nil && newV.LessThan(curV) {
			return &ConfigurationError{
				PackID: pack.ID,
				Reason: fmt.Sprintf("rollback from %s to %s denied", curV, newV),
			}
		}
	}

	r.packs[pack.ID] = pack
	return nil
}

// Get returns a pack by id.
func (r *Registry) Get(id string) (*Pack, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pack, ok := r.packs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPack, id)
	}
	return pack, nil
}

// List returns all packs sorted by id for deterministic iteration.
func (r *Registry) List() []*Pack {
	r.mu.RLock()
	defer r.mu.RUnlock()

	packs := make([]*Pack, 0, len(r.packs))
	for _, p := range r.packs {
		packs = append(packs, p)
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].ID < packs[j].ID })
	return packs
}

// Summary is the catalog entry for one pack.
type Summary struct {
	PackID       string   `json:"pack_id"`
	Name         string   `json:"name"`
	Jurisdiction string   `json:"jurisdiction"`
	Version      string   `json:"version"`
	Release      string   `json:"release"`
	Tier         string   `json:"tier"`
	Frameworks   []string `json:"frameworks"`
	ChecksCount  int      `json:"checks_count"`
	ContentHash  string   `json:"content_hash"`
}

// Summaries returns catalog entries for all registered packs.
func (r *Registry) Summaries() []Summary {
	packs := r.List()
	out := make([]Summary, 0, len(packs))
	for _, p := range packs {
		out = append(out, Summary{
			PackID:       p.ID,
			Name:         p.Name,
			Jurisdiction: p.Jurisdiction,
			Version:      p.Version,
			Release:      p.Release,
			Tier:         p.Tier,
			Frameworks:   p.Frameworks,
			ChecksCount:  len(p.Rules),
			ContentHash:  p.ContentHash,
		})
	}
	return out
}
