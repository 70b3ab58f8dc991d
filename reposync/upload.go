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
	"os"

	"github.com/mantidproject/scriptrepo-go/config"
)

// Upload implements §4.7.2. Directories are rejected outright; a
// file whose status is BOTH_CHANGED must be downloaded (merged) by
// the caller first. progress, if non-nil, receives each chunk's byte
// count as the file body streams to the upload endpoint.
func (s *Synchronizer) Upload(path, comment, author, email string, progress func(int)) error {
	entry, err := s.lookup(path)
	if err != nil {
		return err
	}
	if entry.IsDirectory {
		return notSupportedErr(path, "upload is per-file")
	}
	if !entry.PresentLocal {
		return notFoundErr(path)
	}
	if entry.Status == BothChanged {
		return notSupportedErr(path, "download to merge before uploading")
	}
	if author == "" || email == "" {
		return missingIdentityErr(path)
	}

	if err := s.claimSlot(path, actionUpload); err != nil {
		return err
	}
	defer s.releaseSlot(path)

	absPath := s.mapper.AbsPath(path)
	f, err := os.Open(absPath)
	if err != nil {
		return ioErr(absPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ioErr(absPath, err)
	}

	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()

	pubDate, err := remote.Upload(context.Background(), path, f, info.Size(), comment, author, email, progress)
	if err != nil {
		return err
	}

	s.mu.Lock()
	e := s.entries[path]
	e.PresentRemote = true
	e.Author = author
	e.RemotePubDate = pubDate
	e.HasDownloaded = true
	e.DownloadedPubDate = pubDate
	e.DownloadedLocalMtime = info.ModTime()
	e.Status = BothUnchanged

	s.ctx.PutRemote(path, &config.RemoteRecord{
		Directory:   false,
		PubDate:     pubDate,
		Description: e.Description,
		Author:      author,
	})
	s.ctx.PutDownloaded(path, &config.DownloadedRecord{
		DownloadedPubDate:    pubDate,
		DownloadedLocalMtime: info.ModTime(),
	})
	s.recomputeAncestorStatusLocked(path)

	repoErr := s.ctx.Flush(config.RepositoryKind)
	downloadedErr := s.ctx.Flush(config.DownloadedKind)
	s.mu.Unlock()

	if repoErr != nil {
		return ioErr(s.ctx.RepositoryDir(), repoErr)
	}
	if downloadedErr != nil {
		return ioErr(s.ctx.RepositoryDir(), downloadedErr)
	}
	return nil
}
