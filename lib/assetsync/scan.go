// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// Descriptor is one local file as it should appear in the store.
type Descriptor struct {
	// Key is the URL path: "/" plus the slash-separated path below the
	// scan root.
	Key string

	// SourcePath is the file on disk.
	SourcePath string

	ContentType    string
	MaxAge         *uint64
	Headers        map[string]string
	EnableAliasing *bool
	AllowRawAccess *bool

	// Encodings are the encodings to produce, identity first.
	Encodings []asset.ContentEncoding
}

// ScanOptions adjusts [Scan].
type ScanOptions struct {
	// DefaultEncodings are produced, besides identity, for compressible
	// content types that no rule assigns encodings to.
	DefaultEncodings []asset.ContentEncoding
}

// Scan walks root and returns a descriptor for every file that is not
// ignored, sorted by key. Files with a hidden path segment are ignored
// unless a rule sets "ignore": false for them; rules files are always
// ignored. Symbolic links to directories are not followed.
func Scan(root string, options ScanOptions) ([]Descriptor, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	rulesByDir := make(map[string][]Rule)
	var descriptors []Descriptor
	err = filepath.WalkDir(root, func(filePath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relative, err := filepath.Rel(root, filePath)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)

		if entry.IsDir() {
			rules, err := readRules(filePath)
			if err != nil {
				return err
			}
			if relative == "." {
				relative = ""
			}
			if rules != nil {
				rulesByDir[relative] = rules
			}
			return nil
		}
		if entry.Name() == RulesFileName {
			return nil
		}
		if !entry.Type().IsRegular() {
			target, err := os.Stat(filePath)
			if err != nil || !target.Mode().IsRegular() {
				return nil
			}
		}

		resolved := resolve(scopesFor(rulesByDir, relative), relative)
		ignored := hidden(relative)
		if resolved.ignore != nil {
			ignored = *resolved.ignore
		}
		if ignored {
			return nil
		}

		descriptor := Descriptor{
			Key:            "/" + relative,
			SourcePath:     filePath,
			ContentType:    contentTypeFor(relative),
			MaxAge:         resolved.maxAge,
			Headers:        resolved.headers,
			EnableAliasing: resolved.enableAliasing,
			AllowRawAccess: resolved.allowRawAccess,
		}
		if resolved.contentType != nil {
			descriptor.ContentType = *resolved.contentType
		}
		if err := asset.ValidateKey(descriptor.Key); err != nil {
			return fmt.Errorf("%s: %w", filePath, err)
		}
		switch {
		case resolved.encodingsSet:
			descriptor.Encodings = resolved.encodings
		case compressible(descriptor.ContentType):
			descriptor.Encodings = withIdentity(options.DefaultEncodings)
		default:
			descriptor.Encodings = []asset.ContentEncoding{asset.Identity}
		}
		descriptors = append(descriptors, descriptor)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	slices.SortFunc(descriptors, func(a, b Descriptor) int {
		return strings.Compare(a.Key, b.Key)
	})
	return descriptors, nil
}

// scopesFor returns the rules of every directory from the root down to
// the one holding relative.
func scopesFor(rulesByDir map[string][]Rule, relative string) []scopedRules {
	var scopes []scopedRules
	if rules, ok := rulesByDir[""]; ok {
		scopes = append(scopes, scopedRules{dir: "", rules: rules})
	}
	for i := 0; i < len(relative); i++ {
		if relative[i] != '/' {
			continue
		}
		dir := relative[:i]
		if rules, ok := rulesByDir[dir]; ok {
			scopes = append(scopes, scopedRules{dir: dir, rules: rules})
		}
	}
	return scopes
}

func hidden(relative string) bool {
	for segment := range strings.SplitSeq(relative, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

// withIdentity returns encodings plus identity, deduplicated, in
// declaration order.
func withIdentity(encodings []asset.ContentEncoding) []asset.ContentEncoding {
	set := map[asset.ContentEncoding]bool{asset.Identity: true}
	for _, encoding := range encodings {
		set[encoding] = true
	}
	return asset.SortEncodings(set)
}

// webTypes pins the media types of common web files. The platform MIME
// tables are consulted only for extensions missing here, since they
// differ between hosts.
var webTypes = map[string]string{
	".css":   "text/css",
	".gif":   "image/gif",
	".htm":   "text/html",
	".html":  "text/html",
	".ico":   "image/x-icon",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "text/javascript",
	".json":  "application/json",
	".map":   "application/json",
	".md":    "text/markdown",
	".mjs":   "text/javascript",
	".pdf":   "application/pdf",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".txt":   "text/plain",
	".wasm":  "application/wasm",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".xml":   "application/xml",
}

func contentTypeFor(name string) string {
	extension := strings.ToLower(path.Ext(name))
	if contentType, ok := webTypes[extension]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(extension); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

// compressible reports whether content of contentType usually shrinks
// under gzip or brotli.
func compressible(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"),
		strings.HasSuffix(mediaType, "+json"),
		strings.HasSuffix(mediaType, "+xml"):
		return true
	}
	switch mediaType {
	case "application/javascript", "application/json", "application/xml",
		"application/wasm", "image/svg+xml":
		return true
	}
	return false
}
