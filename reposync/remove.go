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
	"time"

	"github.com/mantidproject/scriptrepo-go/config"
)

// Remove implements §4.7.3: a remote-only deletion, the local copy is
// untouched. Directories are rejected; identity and a non-empty
// comment are required.
func (s *Synchronizer) Remove(path, comment, author, email string) error {
	entry, err := s.lookup(path)
	if err != nil {
		return err
	}
	if entry.IsDirectory {
		return notSupportedErr(path, "remove is per-file")
	}
	if entry.Status != LocalChanged && entry.Status != BothUnchanged {
		return notSupportedErr(path, "download or resolve changes before removing")
	}
	if author == "" || email == "" {
		return missingIdentityErr(path)
	}
	if comment == "" {
		return reasonRequiredErr(path)
	}

	if err := s.claimSlot(path, actionRemove); err != nil {
		return err
	}
	defer s.releaseSlot(path)

	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()

	if err := remote.DeleteRemote(context.Background(), path, comment, author, email); err != nil {
		return err
	}

	s.mu.Lock()
	e := s.entries[path]
	e.PresentRemote = false
	e.RemotePubDate = time.Time{}
	e.HasDownloaded = false
	e.DownloadedPubDate = time.Time{}
	e.Status = fileStatus(e)

	s.ctx.DeleteRemote(path)
	s.ctx.DeleteDownloaded(path)
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
