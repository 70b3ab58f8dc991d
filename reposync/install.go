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
	"errors"
	"os"
	"path/filepath"

	"github.com/mantidproject/scriptrepo-go/config"
)

// Install is the one-shot creation of §4.7/C8: it makes root and its
// hidden metadata subdirectory, seeds the default ignore patterns,
// fetches the remote catalog once, and writes repository.json. It
// refuses to install over a root that already has a metadata
// subdirectory unless force is set.
func (s *Synchronizer) Install(root string, force bool) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return installFailedErr(root, err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return installFailedErr(absRoot, err)
	}

	ctx, _, err := config.Initialize(absRoot, force)
	if err != nil {
		if errors.Is(err, config.ErrNotADirectory) {
			return installFailedErr(absRoot, err)
		}
		return installFailedErr(absRoot, err)
	}

	s.mu.Lock()
	s.ctx = ctx
	rebuildErr := s.rebuildLocked()
	remote := s.remote
	s.mu.Unlock()
	if rebuildErr != nil {
		return installFailedErr(absRoot, rebuildErr)
	}

	catalog, err := remote.FetchCatalog(context.Background())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ctx.ReplaceRemote(catalog)
	flushErr := s.ctx.Flush(config.RepositoryKind)
	s.mu.Unlock()
	if flushErr != nil {
		return installFailedErr(absRoot, flushErr)
	}

	if _, err := s.ListFiles(); err != nil {
		return err
	}
	return nil
}
