// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// RulesFileName is the per-directory rules file. It is never uploaded.
const RulesFileName = ".assets.jsonc"

// Rule configures the files its Match glob selects. Globs are relative
// to the directory holding the rules file. Every field except Match is
// optional; an absent field leaves what earlier rules decided.
//
// Rules apply in order: rules from shallower directories first, and
// within one file in the order written, so a deeper or later rule
// overrides.
type Rule struct {
	Match          string            `json:"match"`
	Cache          *CacheRule        `json:"cache,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	ContentType    *string           `json:"content_type,omitempty"`
	Ignore         *bool             `json:"ignore,omitempty"`
	EnableAliasing *bool             `json:"enable_aliasing,omitempty"`
	AllowRawAccess *bool             `json:"allow_raw_access,omitempty"`
	// Encodings replaces the default encoding list. Identity is
	// produced whether or not it is named.
	Encodings []string `json:"encodings,omitempty"`
}

// CacheRule sets the max-age of matched assets, in seconds.
type CacheRule struct {
	MaxAge *uint64 `json:"max_age,omitempty"`
}

// ParseRules strips comments and trailing commas from data and decodes
// it as a JSON array of rules.
func ParseRules(data []byte) ([]Rule, error) {
	var rules []Rule
	if err := json.Unmarshal(jsonc.ToJSON(data), &rules); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	for i, rule := range rules {
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return rules, nil
}

func (r Rule) validate() error {
	if r.Match == "" {
		return errors.New("match is required")
	}
	if _, err := path.Match(r.Match, ""); err != nil {
		return fmt.Errorf("match %q: %w", r.Match, err)
	}
	if err := asset.ValidateHeaders(r.Headers); err != nil {
		return err
	}
	if _, err := parseEncodings(r.Encodings); err != nil {
		return err
	}
	return nil
}

// readRules loads the rules file in dir. A directory without one has
// no rules.
func readRules(dir string) ([]Rule, error) {
	rulesPath := filepath.Join(dir, RulesFileName)
	data, err := os.ReadFile(rulesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rulesPath, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rulesPath, err)
	}
	return rules, nil
}

// scopedRules are the rules of one directory, identified by its path
// relative to the scan root ("" for the root itself).
type scopedRules struct {
	dir   string
	rules []Rule
}

// settings is the result of folding every matching rule for one file.
type settings struct {
	ignore         *bool
	maxAge         *uint64
	headers        map[string]string
	contentType    *string
	enableAliasing *bool
	allowRawAccess *bool
	encodings      []asset.ContentEncoding
	encodingsSet   bool
}

// resolve folds the rules of every scope on the way to relative (a
// slash-separated path below the scan root), shallowest first.
func resolve(scopes []scopedRules, relative string) settings {
	var result settings
	for _, scope := range scopes {
		name := relative
		if scope.dir != "" {
			name = relative[len(scope.dir)+1:]
		}
		for _, rule := range scope.rules {
			if !matchPattern(rule.Match, name) {
				continue
			}
			result.apply(rule)
		}
	}
	return result
}

func (s *settings) apply(rule Rule) {
	if rule.Ignore != nil {
		s.ignore = rule.Ignore
	}
	if rule.Cache != nil && rule.Cache.MaxAge != nil {
		s.maxAge = rule.Cache.MaxAge
	}
	if rule.Headers != nil {
		if s.headers == nil {
			s.headers = make(map[string]string, len(rule.Headers))
		}
		maps.Copy(s.headers, rule.Headers)
	}
	if rule.ContentType != nil {
		s.contentType = rule.ContentType
	}
	if rule.EnableAliasing != nil {
		s.enableAliasing = rule.EnableAliasing
	}
	if rule.AllowRawAccess != nil {
		s.allowRawAccess = rule.AllowRawAccess
	}
	if rule.Encodings != nil {
		// Validated when the rules were parsed.
		s.encodings, _ = parseEncodings(rule.Encodings)
		s.encodingsSet = true
	}
}

// parseEncodings converts encoding names, always including identity.
func parseEncodings(names []string) ([]asset.ContentEncoding, error) {
	encodings := make([]asset.ContentEncoding, 0, len(names))
	for _, name := range names {
		encoding, err := asset.ParseContentEncoding(name)
		if err != nil {
			return nil, err
		}
		encodings = append(encodings, encoding)
	}
	return withIdentity(encodings), nil
}
