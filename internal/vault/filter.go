package vault

import (
	"path/filepath"
	"strings"
)

// Filter selects vault paths by glob-style include and exclude patterns.
// Exclude wins when a path matches both. A non-empty include list acts as
// a whitelist; an empty include list admits everything not excluded.
type Filter struct {
	include []string
	exclude []string
}

// NewFilter creates a filter from include and exclude pattern lists.
func NewFilter(include, exclude []string) *Filter {
	return &Filter{include: include, exclude: exclude}
}

// Match reports whether a vault-relative path passes the filter.
func (f *Filter) Match(path string) bool {
	if matchesAnyPattern(path, f.exclude) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	return matchesAnyPattern(path, f.include)
}

// Apply returns the subset of files passing the filter, preserving order.
func (f *Filter) Apply(files []FileInfo) []FileInfo {
	out := make([]FileInfo, 0, len(files))
	for _, fi := range files {
		if f.Match(fi.Path) {
			out = append(out, fi)
		}
	}
	return out
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	baseName := filepath.Base(path)
	for _, pattern := range patterns {
		if matchPattern(baseName, path, pattern) {
			return true
		}
	}
	return false
}

// matchPattern checks if a vault-relative path matches a single pattern.
// Supported forms mirror common ignore syntax:
//
//	dir/**          everything under dir
//	**/name         any path segment equal to name
//	**/*.ext        extension anywhere in the tree
//	dir/*.ext       glob in a specific directory
//	*.ext, name*    base-name globs
//	exact/path.md   exact match
func matchPattern(baseName, path, pattern string) bool {
	// dir/** patterns: the directory itself or anything under it
	if strings.HasSuffix(pattern, "/**") && !strings.HasPrefix(pattern, "**/") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}

	// **/ prefix patterns
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		suffix = strings.TrimSuffix(suffix, "/**")
		if strings.HasPrefix(suffix, "*.") {
			// Extension pattern like **/*.excalidraw.md
			return strings.HasSuffix(baseName, strings.TrimPrefix(suffix, "*"))
		}
		for _, part := range strings.Split(path, "/") {
			if part == suffix {
				return true
			}
		}
		return false
	}

	// dir/glob patterns like "daily/2024-*.md"
	if strings.Contains(pattern, "/") && strings.Contains(pattern, "*") {
		if filepath.Dir(path) == pathDir(pattern) {
			matched, err := filepath.Match(filepath.Base(pattern), baseName)
			return err == nil && matched
		}
		return false
	}

	// Base-name glob (supports *, ?, [])
	if strings.ContainsAny(pattern, "*?[") {
		matched, err := filepath.Match(pattern, baseName)
		return err == nil && matched
	}

	// Exact path or exact base name
	return path == pattern || baseName == pattern
}

func pathDir(pattern string) string {
	return filepath.ToSlash(filepath.Dir(pattern))
}
