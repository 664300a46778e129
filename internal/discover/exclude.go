package discover

import (
	"path"
	"path/filepath"
	"strings"
)

// IsExcluded reports whether the root-relative path matches any glob.
func IsExcluded(relPath string, globs []string) bool {
	normalizedPath := normalizeForGlob(relPath)
	if normalizedPath == "" {
		return false
	}
	for _, glob := range globs {
		if matchPathExclude(glob, normalizedPath) {
			return true
		}
	}
	return false
}

func matchPathExclude(glob, relPath string) bool {
	pattern := normalizeForGlob(glob)
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}
	return matchGlobSegments(strings.Split(pattern, "/"), strings.Split(relPath, "/"))
}

func matchGlobSegments(pattern, value []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			for len(pattern) > 1 && pattern[1] == "**" {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(value); i++ {
				if matchGlobSegments(pattern[1:], value[i:]) {
					return true
				}
			}
			return false
		}

		if len(value) == 0 {
			return false
		}

		ok, err := path.Match(pattern[0], value[0])
		if err != nil || !ok {
			return false
		}
		pattern = pattern[1:]
		value = value[1:]
	}
	return len(value) == 0
}

// ValidateExcludes reports the first malformed glob.
func ValidateExcludes(globs []string) error {
	for _, glob := range globs {
		for _, seg := range strings.Split(normalizeForGlob(glob), "/") {
			if seg == "**" {
				continue
			}
			if _, err := path.Match(seg, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

func normalizeForGlob(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = filepath.ToSlash(raw)
	raw = strings.TrimPrefix(raw, "./")
	raw = strings.TrimPrefix(raw, "/")
	return strings.TrimSpace(raw)
}
