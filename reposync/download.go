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
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/mantidproject/scriptrepo-go/config"
)

const backupSuffix = "_bck"

// Download implements §4.7.1. A file argument downloads in place
// (backing up a locally-modified copy first); a directory argument
// recurses depth-first over every descendant file in the remote
// catalog, continuing past per-file failures. progress, if non-nil,
// receives each chunk's byte count as every descendant file streams
// in; callers that don't care about byte-level feedback pass nil.
func (s *Synchronizer) Download(path string, progress func(int)) error {
	entry, err := s.lookup(path)
	if err != nil {
		return err
	}
	if entry.IsDirectory {
		_, err := s.downloadDirectory(path, progress)
		return err
	}
	return s.downloadFile(path, progress)
}

func (s *Synchronizer) downloadFile(path string, progress func(int)) error {
	if err := s.claimSlot(path, actionDownload); err != nil {
		return err
	}
	defer s.releaseSlot(path)

	s.mu.Lock()
	e, ok := s.entries[path]
	if !ok {
		s.mu.Unlock()
		return notFoundErr(path)
	}
	if !e.PresentRemote {
		s.mu.Unlock()
		return notFoundErr(path)
	}
	needsBackup := e.Status == LocalChanged || e.Status == BothChanged
	destAbs := s.mapper.AbsPath(path)
	remote := s.remote
	remotePubDate := e.RemotePubDate
	s.mu.Unlock()

	if needsBackup {
		if err := backupFile(destAbs); err != nil {
			return ioErr(destAbs, err)
		}
	}

	if err := s.ensureParentDir(filepath.Dir(destAbs)); err != nil {
		return ioErr(destAbs, err)
	}

	if err := remote.DownloadFile(context.Background(), path, destAbs, progress); err != nil {
		return err
	}

	info, statErr := os.Stat(destAbs)
	if statErr != nil {
		return ioErr(destAbs, statErr)
	}
	newMtime := info.ModTime()

	s.mu.Lock()
	e = s.entries[path]
	e.PresentLocal = true
	e.LocalMtime = newMtime
	e.HasDownloaded = true
	e.DownloadedPubDate = remotePubDate
	e.DownloadedLocalMtime = newMtime
	e.Status = BothUnchanged
	s.ctx.PutDownloaded(path, &config.DownloadedRecord{
		DownloadedPubDate:    remotePubDate,
		DownloadedLocalMtime: newMtime,
	})
	s.recomputeAncestorStatusLocked(path)
	flushErr := s.ctx.Flush(config.DownloadedKind)
	s.mu.Unlock()

	if flushErr != nil {
		return ioErr(s.ctx.RepositoryDir(), flushErr)
	}
	return nil
}

// downloadDirectory fans every descendant file out to downloadFile
// through the bounded worker pool, per §5's "invocable from a
// background worker" model for per-path actions. progress, when
// non-nil, is shared across every concurrent file and may be called
// from multiple goroutines at once.
func (s *Synchronizer) downloadDirectory(dirPath string, progress func(int)) (succeeded []string, err error) {
	s.mu.Lock()
	files := descendantFiles(s.entries, dirPath)
	s.mu.Unlock()

	results := runJobs(files, maxActionConcurrency(), func(p string) (interface{}, error) {
		derr := s.downloadFile(p, progress)
		return p, derr
	})

	var aggregated []error
	for _, r := range results {
		if r.err != nil {
			aggregated = append(aggregated, r.err)
			s.logger.LogErrf("download: %v: %v\n", r.value, r.err)
			continue
		}
		succeeded = append(succeeded, r.value.(string))
	}
	if len(aggregated) > 0 {
		err = combineErrors(aggregated)
	}
	return succeeded, err
}

// descendantFiles returns every non-directory entry under dirPath
// that is present in the remote catalog, the universe downloadDirectory
// fans out over.
func descendantFiles(entries map[string]*Entry, dirPath string) []string {
	root, ok := entries[dirPath]
	if !ok {
		return nil
	}
	var out []string
	var walk func(e *Entry)
	walk = func(e *Entry) {
		for _, c := range e.Children {
			child, ok := entries[c]
			if !ok {
				continue
			}
			if child.IsDirectory {
				walk(child)
				continue
			}
			if child.PresentRemote {
				out = append(out, child.Path)
			}
		}
	}
	walk(root)
	return out
}

// backupFile copies the current content of abs to abs+"_bck" before
// it is overwritten, per §4.7.1's LOCAL_CHANGED/BOTH_CHANGED rule. A
// missing source file is not an error (nothing to back up yet).
func backupFile(abs string) error {
	src, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	dst, err := os.Create(abs + backupSuffix)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
