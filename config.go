package overlayfs

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the YAML section describing an overlay disk. Each field names
// a collaborator to resolve from the ambient Registry.
type Config struct {
	// Base names the read-only disk.
	Base string `yaml:"base"`
	// Diff names the disk receiving all mutations.
	Diff string `yaml:"diff"`
	// Metadata names the store holding base-origin mappings.
	Metadata string `yaml:"metadata"`
	// TrackedMetadata names the store holding tombstone and tracked
	// markers.
	TrackedMetadata string `yaml:"tracked_metadata"`
}

// Registry is the ambient map of named disks and metadata stores that
// configuration sections resolve against.
type Registry struct {
	Disks  map[string]Disk
	Stores map[string]MetadataStore
}

// FromConfig builds an overlay from a YAML config section, resolving the
// named base and diff disks and the two metadata stores from reg.
//
//	base: local_base
//	diff: local_diff
//	metadata: overlay_meta
//	tracked_metadata: overlay_tracked
func FromConfig(name string, section []byte, reg Registry, opts ...Option) (*Overlay, error) {
	var cfg Config
	if err := yaml.Unmarshal(section, &cfg); err != nil {
		return nil, fmt.Errorf("overlayfs: parsing config for disk %q: %w", name, err)
	}

	base, err := reg.disk(cfg.Base, "base")
	if err != nil {
		return nil, fmt.Errorf("overlayfs: disk %q: %w", name, err)
	}
	diff, err := reg.disk(cfg.Diff, "diff")
	if err != nil {
		return nil, fmt.Errorf("overlayfs: disk %q: %w", name, err)
	}
	metadata, err := reg.store(cfg.Metadata, "metadata")
	if err != nil {
		return nil, fmt.Errorf("overlayfs: disk %q: %w", name, err)
	}
	tracked, err := reg.store(cfg.TrackedMetadata, "tracked_metadata")
	if err != nil {
		return nil, fmt.Errorf("overlayfs: disk %q: %w", name, err)
	}

	return New(name, base, diff, metadata, tracked, opts...), nil
}

func (r Registry) disk(name, field string) (Disk, error) {
	if name == "" {
		return nil, fmt.Errorf("missing %q in config", field)
	}
	d, ok := r.Disks[name]
	if !ok {
		return nil, fmt.Errorf("unknown disk %q for %q", name, field)
	}
	return d, nil
}

func (r Registry) store(name, field string) (MetadataStore, error) {
	if name == "" {
		return nil, fmt.Errorf("missing %q in config", field)
	}
	s, ok := r.Stores[name]
	if !ok {
		return nil, fmt.Errorf("unknown metadata store %q for %q", name, field)
	}
	return s, nil
}
