package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/goplus/tsgrammar/internal/recipe"
)

// Registry directory layout:
//
//	artifactDir/
//	  .cache.json                     # lang → buildEntry
//	  libtree-sitter-<lang>.so        # registered grammars
//	  ...
const cacheFile = ".cache.json"

// buildEntry contains metadata about a single registered build.
type buildEntry struct {
	Commit    string    `json:"commit"`
	ABI       int       `json:"abi"`
	BuildTime time.Time `json:"build_time"`
}

// buildCache maps language ids to their build entries.
type buildCache struct {
	Cache map[string]*buildEntry `json:"cache"`
}

func (c *buildCache) get(lang string) (*buildEntry, bool) {
	entry, ok := c.Cache[lang]
	return entry, ok
}

func (c *buildCache) set(lang string, entry *buildEntry) {
	if c.Cache == nil {
		c.Cache = make(map[string]*buildEntry)
	}
	c.Cache[lang] = entry
}

// loadCache reads the cache file of the registry. A missing file is an
// empty cache.
func (r *Registry) loadCache() (*buildCache, error) {
	data, err := afero.ReadFile(r.fs, filepath.Join(r.dir, cacheFile))
	if os.IsNotExist(err) {
		return &buildCache{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cache buildCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// saveCache writes the cache file of the registry.
func (r *Registry) saveCache(cache *buildCache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(r.fs, filepath.Join(r.dir, cacheFile), data, 0o644)
}

// Entries returns the revisions of every registered grammar whose build is
// recorded, sorted by language id.
func (r *Registry) Entries() ([]recipe.Resolved, error) {
	cache, err := r.loadCache()
	if err != nil {
		return nil, err
	}
	var out []recipe.Resolved
	for lang, e := range cache.Cache {
		if ok, _ := afero.Exists(r.fs, r.Path(lang)); !ok {
			continue
		}
		out = append(out, recipe.Resolved{Lang: lang, Commit: e.Commit, ABI: e.ABI})
	}
	sortResolved(out)
	return out, nil
}

// Recorded returns the revision lang was built from, if its library is
// registered and its build recorded.
func (r *Registry) Recorded(lang string) (recipe.Resolved, bool) {
	if _, err := r.Installed(lang); err != nil {
		return recipe.Resolved{}, false
	}
	cache, err := r.loadCache()
	if err != nil {
		return recipe.Resolved{}, false
	}
	e, ok := cache.get(lang)
	if !ok {
		return recipe.Resolved{}, false
	}
	return recipe.Resolved{Lang: lang, Commit: e.Commit, ABI: e.ABI}, true
}

func writeFileAtomic(fs afero.Fs, name string, data []byte, perm os.FileMode) error {
	tmp := name + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, perm); err != nil {
		return err
	}
	return fs.Rename(tmp, name)
}
