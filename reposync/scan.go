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
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odeke-em/log"
)

// ScanEntry is one tuple produced by the LocalScanner: a repository-
// relative path, whether it names a directory, and the resolved mtime.
type ScanEntry struct {
	Path        string
	IsDirectory bool
	Mtime       time.Time
}

// LocalScanner walks an install root depth-first, skipping the hidden
// metadata directory and anything the active IgnoreFilter matches.
type LocalScanner struct {
	mapper  *PathMapper
	ignore  *IgnoreFilter
	metaAbs string // absolute path of the hidden metadata directory
	logger  *log.Logger
}

// NewLocalScanner builds a scanner over mapper's root. metaAbs is the
// absolute path of the hidden metadata subdirectory, skipped
// unconditionally regardless of the IgnoreFilter.
func NewLocalScanner(mapper *PathMapper, ignore *IgnoreFilter, metaAbs string, logger *log.Logger) *LocalScanner {
	return &LocalScanner{mapper: mapper, ignore: ignore, metaAbs: metaAbs, logger: logger}
}

// Scan returns every local entry, lexicographically ordered by path.
func (s *LocalScanner) Scan() ([]ScanEntry, error) {
	var out []ScanEntry
	if err := s.walk(s.mapper.Root(), &out); err != nil {
		return nil, ioErr(s.mapper.Root(), err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *LocalScanner) walk(dirAbs string, out *[]ScanEntry) error {
	dirEntries, err := os.ReadDir(dirAbs)
	if err != nil {
		return err
	}

	type lstatResult struct {
		entry ScanEntry
		isDir bool
		skip  bool
	}
	results := make([]lstatResult, len(dirEntries))

	var g errgroup.Group
	var mu sync.Mutex
	for i, de := range dirEntries {
		i, de := i, de
		g.Go(func() error {
			childAbs := filepath.Join(dirAbs, de.Name())
			if childAbs == s.metaAbs {
				mu.Lock()
				results[i].skip = true
				mu.Unlock()
				return nil
			}

			info, statErr := os.Lstat(childAbs)
			if statErr != nil {
				return statErr
			}

			isDir := info.IsDir()
			mtime := info.ModTime()

			if info.Mode()&os.ModeSymlink != 0 {
				target, targetErr := os.Stat(childAbs)
				if targetErr != nil {
					s.logger.LogErrf("warn: skipping unresolved symlink %s: %v\n", childAbs, targetErr)
					mu.Lock()
					results[i].skip = true
					mu.Unlock()
					return nil
				}
				isDir = target.IsDir()
				mtime = target.ModTime()
			}

			repoPath, mapErr := s.mapper.ToRepoPath(childAbs)
			if mapErr != nil {
				return mapErr
			}

			if s.ignore.Match(repoPath) {
				mu.Lock()
				results[i].skip = true
				mu.Unlock()
				return nil
			}

			mu.Lock()
			results[i] = lstatResult{
				entry: ScanEntry{Path: repoPath, IsDirectory: isDir, Mtime: mtime},
				isDir: isDir && info.Mode()&os.ModeSymlink == 0,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, de := range dirEntries {
		r := results[i]
		if r.skip {
			continue
		}
		*out = append(*out, r.entry)
		if r.isDir {
			if err := s.walk(filepath.Join(dirAbs, de.Name()), out); err != nil {
				return err
			}
		}
	}

	return nil
}
