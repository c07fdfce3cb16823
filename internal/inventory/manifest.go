package inventory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/book-expert/syllabs/internal/core"
	"gopkg.in/yaml.v3"
)

// Manifest is an explicit syllable inventory, used when asset names cannot double as
// syllable names.
//
// Example:
//
//	language: fr
//	syllables:
//	  - syllable: ba
//	    resource: fr/ba.wav
//	  - syllable: ré
//	    resource: fr/re-accent-aigu.wav
type Manifest struct {
	Language  string          `yaml:"language"`
	Syllables []ManifestEntry `yaml:"syllables"`
}

// ManifestEntry is one syllable of a manifest.
type ManifestEntry struct {
	Syllable string `yaml:"syllable"`
	Resource string `yaml:"resource"`
}

// LoadManifest reads and parses a manifest file from disk.
func LoadManifest(manifestPath string) (*Manifest, error) {
	file, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest '%s': %w", manifestPath, err)
	}
	defer file.Close()

	manifest, err := LoadManifestFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest '%s': %w", manifestPath, err)
	}

	return manifest, nil
}

// LoadManifestFromReader parses manifest YAML from r.
func LoadManifestFromReader(r io.Reader) (*Manifest, error) {
	var manifest Manifest

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	err := decoder.Decode(&manifest)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	return &manifest, nil
}

// Entries returns the manifest's entries with lowercased syllables. Entries missing a
// syllable or a resource are skipped, and a repeated syllable keeps its first resource.
func (m *Manifest) Entries() []Entry {
	seen := make(map[string]struct{}, len(m.Syllables))
	entries := make([]Entry, 0, len(m.Syllables))

	for _, item := range m.Syllables {
		name := strings.ToLower(strings.TrimSpace(item.Syllable))
		resource := strings.TrimSpace(item.Resource)

		if name == "" || resource == "" {
			continue
		}

		if _, duplicate := seen[name]; duplicate {
			continue
		}

		seen[name] = struct{}{}
		entries = append(entries, Entry{Syllable: name, Resource: core.ResourceRef(resource)})
	}

	return entries
}
