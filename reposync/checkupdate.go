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

	"github.com/mantidproject/scriptrepo-go/config"
)

// Check4Update fetches the remote catalog, persists it, recomputes
// the entry set, then downloads every entry with auto_update=true
// whose status is REMOTE_CHANGED or REMOTE_ONLY. Per-file failures
// are collected and reported but do not abort the loop. At most one
// Check4Update may be in flight; a second concurrent call fails BUSY.
func (s *Synchronizer) Check4Update() ([]string, error) {
	s.mu.Lock()
	if s.check4UpdateRunning {
		s.mu.Unlock()
		return nil, busyErr("", actionCheck4Update)
	}
	s.check4UpdateRunning = true
	remote := s.remote
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.check4UpdateRunning = false
		s.mu.Unlock()
	}()

	catalog, err := remote.FetchCatalog(context.Background())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.ctx.ReplaceRemote(catalog)
	flushErr := s.ctx.Flush(config.RepositoryKind)
	s.mu.Unlock()
	if flushErr != nil {
		return nil, ioErr(s.ctx.RepositoryDir(), flushErr)
	}

	if _, err := s.ListFiles(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var candidates []string
	for path, e := range s.entries {
		if e.IsDirectory || !e.AutoUpdate {
			continue
		}
		if e.Status == RemoteChanged || e.Status == RemoteOnly {
			candidates = append(candidates, path)
		}
	}
	s.mu.Unlock()

	results := runJobs(candidates, maxActionConcurrency(), func(p string) (interface{}, error) {
		return p, s.downloadFile(p, nil)
	})

	var succeeded []string
	var aggregated []error
	for _, r := range results {
		if r.err != nil {
			aggregated = append(aggregated, r.err)
			s.logger.LogErrf("check4update: %v: %v\n", r.value, r.err)
			continue
		}
		succeeded = append(succeeded, r.value.(string))
	}

	var err2 error
	if len(aggregated) > 0 {
		err2 = combineErrors(aggregated)
	}
	return succeeded, err2
}

// actionCheck4Update is a synthetic action kind used only to report
// BUSY for a second concurrent Check4Update via the same typed error;
// it is never stored in the per-path action table.
const actionCheck4Update = actionKind(-1)
