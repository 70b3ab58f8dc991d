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

// Package reposync is the repository synchronization engine: the
// three-way state model over remote, local, and last-downloaded
// snapshots, the catalog merge, and the per-entry action protocol.
package reposync

import (
	"os"
	"sync"
	"time"

	expirableCache "github.com/odeke-em/cache"
	"github.com/odeke-em/log"

	"github.com/mantidproject/scriptrepo-go/config"
)

// actionKind identifies the one action a path's slot may hold.
type actionKind int

const (
	actionDownload actionKind = iota
	actionUpload
	actionRemove
)

func (k actionKind) String() string {
	switch k {
	case actionDownload:
		return "download"
	case actionUpload:
		return "upload"
	case actionRemove:
		return "remove"
	case actionCheck4Update:
		return "check4update"
	default:
		return "unknown"
	}
}

// Synchronizer is the public surface of §4.7: it owns the entry set,
// the per-path action table, and the references to the metadata store
// and remote client. A single coarse mutex guards the entry set, the
// action table, and the in-memory sidecar views, per §5 — I/O runs
// outside the lock.
type Synchronizer struct {
	mu sync.Mutex

	ctx    *config.Context
	mapper *PathMapper
	ignore *IgnoreFilter
	remote *RemoteCatalogClient
	logger *log.Logger

	entries map[string]*Entry
	actions map[string]actionKind

	check4UpdateRunning bool

	mkdirAllCache *expirableCache.OperationCache

	// ThrottleBytesPerSec, when non-zero, caps RemoteCatalogClient
	// upload/download bandwidth.
	ThrottleBytesPerSec int64
}

// InfoResult is the read-only lookup payload of info(path).
type InfoResult struct {
	Author      string
	PubDate     time.Time
	AutoUpdate  bool
	IsDirectory bool
}

// NewSynchronizer constructs an unbound Synchronizer: no install root
// is set until Install or Open succeeds.
func NewSynchronizer(logger *log.Logger) *Synchronizer {
	return &Synchronizer{
		logger:        logger,
		actions:       map[string]actionKind{},
		mkdirAllCache: expirableCache.New(),
	}
}

// Open loads an already-installed repository at absPath.
func Open(absPath string, logger *log.Logger) (*Synchronizer, error) {
	ctx := config.NewContext(absPath)
	if err := ctx.Load(); err != nil {
		return nil, corruptMetadataErr(absPath, err)
	}
	return FromContext(ctx, logger)
}

// FromContext wraps an already-loaded Context (e.g. one returned by
// config.Discover) in a Synchronizer, useful for callers that walk up
// from the working directory rather than a known install root.
func FromContext(ctx *config.Context, logger *log.Logger) (*Synchronizer, error) {
	s := NewSynchronizer(logger)
	s.ctx = ctx
	if err := s.rebuildLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// rebuildLocked re-derives mapper, ignore filter, and remote client
// from the current Context; called after Install, Connect, or
// SetIgnorePatterns change ctx's fields. Caller must hold s.mu.
func (s *Synchronizer) rebuildLocked() error {
	s.mapper = NewPathMapper(s.ctx.AbsPath)

	ignore, err := NewIgnoreFilter(s.ctx.IgnorePatterns())
	if err != nil {
		return err
	}
	s.ignore = ignore

	s.remote = NewRemoteCatalogClient(s.ctx.CatalogURL, s.ctx.UploadURL, s.ctx.ProxyHTTP, s.ThrottleBytesPerSec)
	return nil
}

// LocalRoot returns the resolved absolute install root, the Go
// equivalent of the original's localRepository() accessor.
func (s *Synchronizer) LocalRoot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return ""
	}
	return s.ctx.AbsPath
}

// IsValid reports whether the install root exists, the three
// sidecars are loadable, and the remote URL is configured. Pure; it
// performs only local filesystem and sidecar I/O, never a remote
// call.
func (s *Synchronizer) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return false
	}
	info, err := os.Stat(s.ctx.AbsPath)
	if err != nil || !info.IsDir() {
		return false
	}
	if info, err := os.Stat(s.ctx.RepositoryDir()); err != nil || !info.IsDir() {
		return false
	}
	if err := config.NewContext(s.ctx.AbsPath).Load(); err != nil {
		return false
	}
	if s.ctx.CatalogURL == "" {
		return false
	}
	return true
}

// Connect overrides the catalog/upload URL for the session only,
// used for testing or migrating to a new remote without reinstalling.
func (s *Synchronizer) Connect(catalogURL, uploadURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx.SetSessionURLs(catalogURL, uploadURL)
	return s.rebuildLocked()
}

// IgnorePatterns returns the persisted pattern string.
func (s *Synchronizer) IgnorePatterns() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.IgnorePatterns()
}

// SetIgnorePatterns updates and persists the pattern string; a
// compile failure leaves the previous filter in place.
func (s *Synchronizer) SetIgnorePatterns(patterns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newFilter, err := NewIgnoreFilter(patterns)
	if err != nil {
		return err
	}

	s.ctx.SetIgnorePatterns(patterns)
	if err := s.ctx.FlushConfig(); err != nil {
		return ioErr(s.ctx.RepositoryDir(), err)
	}
	s.ignore = newFilter
	return nil
}

// ListFiles is the only moment status is recomputed: it rescans the
// local tree (C4), joins it against the in-memory remote/local/
// downloaded snapshots already held by the Context (C3), and replaces
// the cached entry set. The remote catalog itself is not re-fetched
// here — only Install and Check4Update do that.
func (s *Synchronizer) ListFiles() ([]string, error) {
	s.mu.Lock()
	mapper, ignore, ctx := s.mapper, s.ignore, s.ctx
	s.mu.Unlock()

	scanner := NewLocalScanner(mapper, ignore, ctx.RepositoryDir(), s.logger)
	scanned, err := scanner.Scan()
	if err != nil {
		return nil, err
	}

	in := MergeInputs{
		Remote:     ctx.Remote(),
		Local:      ctx.Local(),
		Downloaded: ctx.Downloaded(),
		Scanned:    scanned,
	}

	entries, conflicts := MergeEntries(in, ignore)
	for _, c := range conflicts {
		s.logger.LogErrf("shape conflict: %s: %s\n", c.Path, c.Message)
	}

	s.mu.Lock()
	s.entries = entries
	paths := SortedPaths(s.entries)
	s.mu.Unlock()

	return paths, nil
}

func (s *Synchronizer) lookup(path string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok {
		return nil, notFoundErr(path)
	}
	return e, nil
}

// Info looks up the descriptive fields of a known entry.
func (s *Synchronizer) Info(path string) (InfoResult, error) {
	e, err := s.lookup(path)
	if err != nil {
		return InfoResult{}, err
	}
	return InfoResult{
		Author:      e.Author,
		PubDate:     e.RemotePubDate,
		AutoUpdate:  e.AutoUpdate,
		IsDirectory: e.IsDirectory,
	}, nil
}

// Description looks up an entry's free-form description.
func (s *Synchronizer) Description(path string) (string, error) {
	e, err := s.lookup(path)
	if err != nil {
		return "", err
	}
	return e.Description, nil
}

// FileStatus looks up an entry's derived status.
func (s *Synchronizer) FileStatus(path string) (Status, error) {
	e, err := s.lookup(path)
	if err != nil {
		return 0, err
	}
	return e.Status, nil
}

// SetAutoUpdate sets the auto_update flag for a file, or recurses
// over every descendant file for a directory, returning the count of
// files changed and persisting to local.json.
func (s *Synchronizer) SetAutoUpdate(path string, flag bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.entries[path]
	if !ok {
		return 0, notFoundErr(path)
	}

	count := 0
	var apply func(e *Entry)
	apply = func(e *Entry) {
		if !e.IsDirectory {
			e.AutoUpdate = flag
			s.ctx.PutLocal(e.Path, &config.LocalRecord{AutoUpdate: flag, LocalMtime: e.LocalMtime})
			count++
			return
		}
		for _, c := range e.Children {
			if child, ok := s.entries[c]; ok {
				apply(child)
			}
		}
	}
	apply(root)

	if err := s.ctx.Flush(config.LocalKind); err != nil {
		return count, ioErr(s.ctx.RepositoryDir(), err)
	}
	return count, nil
}

// claimSlot claims path's action slot under the lock, failing fast
// with BUSY if another action is already in flight for it.
func (s *Synchronizer) claimSlot(path string, kind actionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, busy := s.actions[path]; busy {
		return busyErr(path, existing)
	}
	s.actions[path] = kind
	return nil
}

func (s *Synchronizer) releaseSlot(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, path)
}

// mkdirAllCacheSeconds bounds how long a directory is assumed to
// already exist once this process has created it, so a later Remove
// of that directory (outside this process's view) is noticed again
// within a few minutes rather than never.
const mkdirAllCacheSeconds = 300

// ensureParentDir creates dir's directory once per process, memoized
// in mkdirAllCache so concurrent downloads into the same directory
// don't all pay a redundant MkdirAll syscall.
func (s *Synchronizer) ensureParentDir(dir string) error {
	if _, ok := s.mkdirAllCache.Get(dir); ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	s.mkdirAllCache.Put(dir, expirableCache.NewExpirableValueWithOffset(true, mkdirAllCacheSeconds))
	return nil
}

// recomputeAncestorStatusLocked refolds every ancestor of path after a
// leaf's status changes, without a full ListFiles rescan. Caller must
// hold s.mu.
func (s *Synchronizer) recomputeAncestorStatusLocked(path string) {
	for parent := parentOf(path); parent != ""; parent = parentOf(parent) {
		pe, ok := s.entries[parent]
		if !ok {
			break
		}
		childStatuses := make([]Status, 0, len(pe.Children))
		for _, c := range pe.Children {
			if ce, ok := s.entries[c]; ok {
				childStatuses = append(childStatuses, ce.Status)
			}
		}
		pe.Status = foldDirectoryStatus(childStatuses)
	}
}
