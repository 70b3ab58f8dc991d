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
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mantidproject/scriptrepo-go/config"
)

// MergeInputs bundles the four views EntryMerger joins: the remote
// catalog snapshot, the local scan, and the two local sidecars.
type MergeInputs struct {
	Remote     map[string]*config.RemoteRecord
	Local      map[string]*config.LocalRecord
	Downloaded map[string]*config.DownloadedRecord
	Scanned    []ScanEntry
}

// MergeEntries is the pure join of §4.6: it never touches disk or the
// network. conflicts collects non-fatal SHAPE_CONFLICT warnings — the
// merge still completes and marks the offending path BOTH_CHANGED.
func MergeEntries(in MergeInputs, ignore *IgnoreFilter) (entries map[string]*Entry, conflicts []*Error) {
	entries = map[string]*Entry{}

	get := func(path string) *Entry {
		e, ok := entries[path]
		if !ok {
			e = &Entry{Path: path}
			entries[path] = e
		}
		return e
	}

	for path, rec := range in.Remote {
		e := get(path)
		e.PresentRemote = true
		e.IsDirectory = rec.Directory
		e.RemotePubDate = rec.PubDate
		e.Description = rec.Description
		e.Author = rec.Author
	}

	for _, sc := range in.Scanned {
		e := get(sc.Path)
		wasKnown := e.PresentRemote
		wasDir := e.IsDirectory
		e.PresentLocal = true
		e.LocalMtime = sc.Mtime

		if wasKnown && wasDir != sc.IsDirectory {
			conflicts = append(conflicts, &Error{
				Status:  StatusShapeConflict,
				Path:    sc.Path,
				Message: "remote and local disagree on whether this entry is a directory",
			})
			e.Status = BothChanged
			continue
		}
		e.IsDirectory = sc.IsDirectory
	}

	for path, rec := range in.Downloaded {
		if e, ok := entries[path]; ok {
			e.HasDownloaded = true
			e.DownloadedPubDate = rec.DownloadedPubDate
			e.DownloadedLocalMtime = rec.DownloadedLocalMtime
		}
	}

	for path, rec := range in.Local {
		if e, ok := entries[path]; ok {
			e.AutoUpdate = rec.AutoUpdate
		}
	}

	ensureAncestors(entries)
	populateChildren(entries)

	// Each depth level only reads statuses finalized by the level
	// below, so every entry within a level can be computed
	// concurrently — the same batch-per-level shape scan.go uses for
	// its Lstat fan-out.
	for _, level := range levelsByDepthDescending(entries) {
		var g errgroup.Group
		for _, path := range level {
			path := path
			g.Go(func() error {
				e := entries[path]
				if conflictEntry(conflicts, path) {
					return nil // already finalized as BothChanged above
				}
				if e.IsDirectory {
					childStatuses := make([]Status, 0, len(e.Children))
					for _, c := range e.Children {
						childStatuses = append(childStatuses, entries[c].Status)
					}
					e.Status = foldDirectoryStatus(childStatuses)
				} else {
					e.Status = fileStatus(e)
				}
				return nil
			})
		}
		g.Wait() //nolint:errcheck // the goroutines above never return an error
	}

	pruneEmptyDirectories(entries)
	applyIgnoreFilter(entries, ignore)

	return entries, conflicts
}

func conflictEntry(conflicts []*Error, path string) bool {
	for _, c := range conflicts {
		if c.Path == path {
			return true
		}
	}
	return false
}

// ensureAncestors synthesizes a directory Entry for every ancestor
// path implied by an existing entry, so the status fold has a
// complete tree to walk even when the scanner or catalog never named
// an intermediate directory explicitly.
func ensureAncestors(entries map[string]*Entry) {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	for _, p := range paths {
		for _, ancestor := range ancestorsOf(p) {
			if _, ok := entries[ancestor]; !ok {
				entries[ancestor] = &Entry{Path: ancestor, IsDirectory: true}
			}
		}
	}
}

func ancestorsOf(path string) []string {
	parts := strings.Split(path, RemoteSeparator)
	var out []string
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], RemoteSeparator))
	}
	return out
}

func populateChildren(entries map[string]*Entry) {
	for _, e := range entries {
		e.Children = nil
	}
	for path := range entries {
		parent := parentOf(path)
		if parent == "" {
			continue
		}
		if pe, ok := entries[parent]; ok {
			pe.Children = append(pe.Children, path)
		}
	}
	for _, e := range entries {
		sort.Strings(e.Children)
	}
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, RemoteSeparator)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// levelsByDepthDescending groups every path by depth, deepest level
// first, so the caller can fold each level's statuses before moving
// up to its parents.
func levelsByDepthDescending(entries map[string]*Entry) [][]string {
	byDepth := map[int][]string{}
	maxDepth := 0
	for p := range entries {
		d := depthOf(p)
		byDepth[d] = append(byDepth[d], p)
		if d > maxDepth {
			maxDepth = d
		}
	}
	levels := make([][]string, 0, maxDepth+1)
	for d := maxDepth; d >= 0; d-- {
		if paths, ok := byDepth[d]; ok {
			sort.Strings(paths)
			levels = append(levels, paths)
		}
	}
	return levels
}

func depthOf(path string) int {
	return strings.Count(path, RemoteSeparator)
}

// pruneEmptyDirectories drops synthesized directories that end up
// with no remaining children and no explicit remote-catalog presence,
// per §9's "omit empty intermediate directories" rule.
func pruneEmptyDirectories(entries map[string]*Entry) {
	changed := true
	for changed {
		changed = false
		for path, e := range entries {
			if !e.IsDirectory {
				continue
			}
			if e.PresentRemote || len(e.Children) > 0 {
				continue
			}
			delete(entries, path)
			if parent := parentOf(path); parent != "" {
				if pe, ok := entries[parent]; ok {
					pe.Children = removeChild(pe.Children, path)
				}
			}
			changed = true
		}
	}
}

func removeChild(children []string, drop string) []string {
	out := children[:0]
	for _, c := range children {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}

// applyIgnoreFilter drops entries the filter matches, unless they are
// present in the remote catalog (the remote catalog is authoritative
// over ignores, per §4.6 step 7).
func applyIgnoreFilter(entries map[string]*Entry, ignore *IgnoreFilter) {
	for path, e := range entries {
		if e.PresentRemote {
			continue
		}
		if ignore.Match(path) {
			delete(entries, path)
			if parent := parentOf(path); parent != "" {
				if pe, ok := entries[parent]; ok {
					pe.Children = removeChild(pe.Children, path)
				}
			}
		}
	}
}

// SortedPaths returns entries' keys in lexicographic order, the
// deterministic ordering list_files promises.
func SortedPaths(entries map[string]*Entry) []string {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
