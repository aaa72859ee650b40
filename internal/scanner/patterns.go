package scanner

import (
	"path"
	"strings"
)

// Predicate decides whether a slash-separated path relative to the synced
// root is part of the synced set.
type Predicate func(relPath string) bool

// Extensions matches files whose extension is one of exts, ignoring case.
// Extensions may be given with or without the leading dot.
func Extensions(exts ...string) Predicate {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return func(relPath string) bool {
		_, ok := set[strings.ToLower(path.Ext(relPath))]
		return ok
	}
}

// Patterns matches files against any of the given patterns.
//
// Pattern forms: "name" (exact base name), "*suffix", "prefix*", "*middle*",
// "dir/**" (anything beneath dir), "**/*.ext" (extension at any depth),
// "**/name" (a path segment anywhere) and "dir/glob" (glob within dir).
func Patterns(patterns ...string) Predicate {
	return func(relPath string) bool {
		return matchesAnyPattern(relPath, patterns)
	}
}

// All matches when every predicate matches. All() matches everything.
func All(preds ...Predicate) Predicate {
	return func(relPath string) bool {
		for _, p := range preds {
			if !p(relPath) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one predicate matches. Any() matches nothing.
func Any(preds ...Predicate) Predicate {
	return func(relPath string) bool {
		for _, p := range preds {
			if p(relPath) {
				return true
			}
		}
		return false
	}
}

// Not inverts a predicate.
func Not(pred Predicate) Predicate {
	return func(relPath string) bool {
		return !pred(relPath)
	}
}

func matchesAnyPattern(relPath string, patterns []string) bool {
	baseName := path.Base(relPath)
	for _, pattern := range patterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	return false
}

// matchDirPattern checks if a directory path matches a pattern.
func matchDirPattern(relPath, pattern string) bool {
	// **/name/** and **/name: any segment equals name
	if strings.HasPrefix(pattern, "**/") {
		name := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(relPath, "/") {
			if part == name {
				return true
			}
		}
		return false
	}

	// dir/** matches dir itself and everything beneath it
	prefix := strings.TrimSuffix(pattern, "/**")
	return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
}

// matchFilePattern checks if a file matches a pattern.
func matchFilePattern(baseName, relPath, pattern string) bool {
	switch {
	case strings.HasSuffix(pattern, "/**") && !strings.HasPrefix(pattern, "**/"):
		return strings.HasPrefix(relPath, strings.TrimSuffix(pattern, "/**")+"/")

	case strings.HasPrefix(pattern, "**/"):
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.HasPrefix(suffix, "*.") {
			return strings.HasSuffix(baseName, strings.TrimPrefix(suffix, "*"))
		}
		parts := strings.Split(relPath, "/")
		for i, part := range parts {
			if part == suffix {
				return true
			}
			if i < len(parts)-1 && matchDirPattern(strings.Join(parts[:i+1], "/"), pattern) {
				return true
			}
		}
		return false

	case strings.Contains(pattern, "/"):
		// dir/glob: the glob applies to files directly inside dir
		dir, filePattern := path.Split(pattern)
		if path.Dir(relPath) != strings.TrimSuffix(dir, "/") {
			return false
		}
		matched, err := path.Match(filePattern, baseName)
		return err == nil && matched

	case len(pattern) > 1 && strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		middle := strings.Trim(pattern, "*")
		return strings.Contains(strings.ToLower(baseName), strings.ToLower(middle))

	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(baseName, strings.TrimPrefix(pattern, "*"))

	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(baseName, strings.TrimSuffix(pattern, "*"))

	default:
		return baseName == pattern
	}
}
