// Package inventory collects the syllable to audio asset entries available at startup and
// builds the syllable trie from them.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/syllabs/internal/core"
	"github.com/book-expert/syllabs/internal/syllable"
)

// DefaultExtension is the audio asset extension recognised when none is configured.
const DefaultExtension = ".wav"

// ErrEmptyInventory indicates that no syllable could be collected.
var ErrEmptyInventory = errors.New("syllable inventory is empty")

// Entry associates a syllable with the asset that pronounces it.
type Entry struct {
	Syllable string
	Resource core.ResourceRef
}

// FromObjectNames turns asset object names into entries. Only names ending in ext are
// kept; the syllable is the lowercased base name without its extension, so nested
// prefixes such as "fr/vowels/a.wav" are flattened. When two assets share a syllable the
// first name in sorted order wins.
func FromObjectNames(names []string, ext string) []Entry {
	if ext == "" {
		ext = DefaultExtension
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	seen := make(map[string]struct{}, len(sorted))
	entries := make([]Entry, 0, len(sorted))

	for _, name := range sorted {
		if path.Ext(name) != ext {
			continue
		}

		stem := strings.ToLower(strings.TrimSuffix(path.Base(name), ext))
		if stem == "" {
			continue
		}

		if _, duplicate := seen[stem]; duplicate {
			continue
		}

		seen[stem] = struct{}{}
		entries = append(entries, Entry{Syllable: stem, Resource: core.ResourceRef(name)})
	}

	return entries
}

// FromObjectStore lists the asset bucket and converts its object names into entries.
func FromObjectStore(ctx context.Context, lister core.ObjectLister, ext string) ([]Entry, error) {
	names, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list syllable assets: %w", err)
	}

	return FromObjectNames(names, ext), nil
}

// Build inserts every entry into a new trie and logs the resulting tree.
func Build(entries []Entry, log *logger.Logger) (*syllable.Trie, error) {
	trie := syllable.NewTrie()

	for _, entry := range entries {
		trie.Insert(entry.Syllable, entry.Resource)
	}

	if trie.Len() == 0 {
		return nil, ErrEmptyInventory
	}

	log.Info("Syllable trie built with %d syllables:\n%s", trie.Len(), trie.String())

	return trie, nil
}
