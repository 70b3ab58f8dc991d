// Copyright 2013 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reposync

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// RemoteSeparator is the only separator an Entry's Path is ever stored
// or compared with, regardless of host.
const RemoteSeparator = "/"

// PathMapper normalizes user-supplied paths against a single install
// root into repository-relative keys.
type PathMapper struct {
	root string // absolute, OS-native, no trailing separator
}

// NewPathMapper builds a PathMapper rooted at root, which must already
// be absolute.
func NewPathMapper(root string) *PathMapper {
	return &PathMapper{root: filepath.Clean(root)}
}

// Root returns the absolute install root this mapper was built with.
func (m *PathMapper) Root() string { return m.root }

// ToRepoPath normalizes an absolute, relative, or home-prefixed input
// path into a repository-relative key using '/' separators. Paths
// outside the root are returned unchanged (the caller treats them as
// non-local). Empty input or a '..' escape of the root fails with
// INVALID_PATH.
func (m *PathMapper) ToRepoPath(input string) (string, error) {
	if input == "" {
		return "", invalidPathErr(input, nil)
	}

	expanded, err := expandHome(input)
	if err != nil {
		return "", invalidPathErr(input, err)
	}

	abs := expanded
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(m.root, abs)
	}
	abs = filepath.Clean(abs)

	if abs == m.root {
		return "", nil
	}

	rel, err := filepath.Rel(m.root, abs)
	if err != nil {
		return "", invalidPathErr(input, err)
	}

	if rel == "." {
		return "", nil
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		// Outside the root: caller treats this as non-local, not an
		// error, unless the input was trying to reach there via the
		// relative form (an explicit escape of a relative path is
		// still INVALID_PATH per spec).
		if !filepath.IsAbs(expanded) {
			return "", invalidPathErr(input, nil)
		}
		return filepath.ToSlash(abs), nil
	}

	return filepath.ToSlash(rel), nil
}

// AbsPath is the inverse of ToRepoPath: it maps a repository-relative
// key back to an absolute, OS-native filesystem path under the root.
func (m *PathMapper) AbsPath(repoPath string) string {
	if repoPath == "" {
		return m.root
	}
	return filepath.Join(m.root, filepath.FromSlash(repoPath))
}

// expandHome expands a leading "~" or "~/" to the current user's home
// directory; any other input passes through unchanged.
func expandHome(input string) (string, error) {
	if input != "~" && !strings.HasPrefix(input, "~/") {
		return input, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if input == "~" {
		return home, nil
	}
	return path.Join(home, input[2:]), nil
}
