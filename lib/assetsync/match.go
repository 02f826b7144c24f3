// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"path"
	"strings"
)

// matchPattern reports whether a slash-separated path, relative to
// the directory holding the rule, matches a rule glob:
//
//   - "index.html" matches only that file next to the rules file
//   - "*.js" matches scripts in that directory but not below it
//   - "**/*.js" matches scripts at any depth
//   - "static/**" matches everything under static/
//   - "static/**/*.css" matches stylesheets anywhere under static/
//   - "**" matches everything
//
// "*" and "?" never match "/". Malformed patterns match nothing.
func matchPattern(pattern, name string) bool {
	if pattern == "**" {
		return true
	}

	if !strings.Contains(pattern, "**") {
		return matchGlob(pattern, name)
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := pattern[:len(pattern)-3]
		if matchGlob(prefix, name) {
			return true
		}
		return hasMatchingPrefix(prefix, name)
	}

	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		if matchGlob(suffix, name) {
			return true
		}
		return hasMatchingSuffix(suffix, name)
	}

	separatorIndex := strings.Index(pattern, "/**/")
	if separatorIndex < 0 {
		// "**" glued to other characters, as in "a**b".
		return false
	}
	prefix := pattern[:separatorIndex]
	suffix := pattern[separatorIndex+4:]

	// "**" consuming no directories.
	if matchGlob(prefix+"/"+suffix, name) {
		return true
	}

	prefixDepth := strings.Count(prefix, "/") + 1
	suffixDepth := strings.Count(suffix, "/") + 1
	segments := strings.Split(name, "/")
	if len(segments) < prefixDepth+1+suffixDepth {
		return false
	}
	if !matchGlob(prefix, strings.Join(segments[:prefixDepth], "/")) {
		return false
	}
	if !matchGlob(suffix, strings.Join(segments[len(segments)-suffixDepth:], "/")) {
		return false
	}
	for _, segment := range segments[prefixDepth : len(segments)-suffixDepth] {
		if segment == "" {
			return false
		}
	}
	return true
}

func matchGlob(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	return err == nil && matched
}

// hasMatchingPrefix reports whether the leading segments of name match
// pattern with at least one segment left over.
func hasMatchingPrefix(pattern, name string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(name, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[:depth], "/"))
}

// hasMatchingSuffix reports whether the trailing segments of name
// match pattern with at least one segment before them.
func hasMatchingSuffix(pattern, name string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(name, "/")
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[len(segments)-depth:], "/"))
}
