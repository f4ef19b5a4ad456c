package walk

import (
	"path"
	"path/filepath"
)

// Filter decides which paths under a root are candidates for analysis. The
// watcher asks it about single paths; ListFiles uses it for whole trees.
type Filter struct {
	opts Options
	ig   *ignoreMatcher
}

func NewFilter(root string, opts Options) (*Filter, error) {
	f := &Filter{opts: opts}
	if !opts.ScanAll {
		ig, err := loadIgnoreMatcher(root)
		if err != nil {
			return nil, err
		}
		f.ig = ig
	}
	return f, nil
}

// ShouldInclude takes a slash or OS separated path relative to the root.
func (f *Filter) ShouldInclude(rel string, isDir bool) bool {
	if f == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	name := path.Base(rel)

	if !f.opts.ScanAll {
		if isHidden(name) || (isDir && skippedDirs[name]) {
			return false
		}
		if f.ig.isIgnored(rel, isDir) {
			return false
		}
	}
	if isDir {
		return true
	}

	if f.opts.SourceOnly && LanguageFor(name) == "text" {
		return false
	}
	if len(f.opts.IncludeGlobs) > 0 && !anyGlobMatch(f.opts.IncludeGlobs, rel) {
		return false
	}
	return !anyGlobMatch(f.opts.ExcludeGlobs, rel)
}
