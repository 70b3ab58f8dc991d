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
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch starts a background filesystem watch over the install root
// and returns a channel that receives a signal whenever the tree
// changes. It never recomputes status itself — ListFiles remains the
// only place that happens — so callers decide when to react. The
// channel is closed when ctx is done or the watcher shuts down; if the
// watch cannot start, Watch returns an error and no channel.
func (s *Synchronizer) Watch(ctx context.Context) (<-chan struct{}, error) {
	s.mu.Lock()
	root := s.ctx.AbsPath
	metaDir := s.ctx.RepositoryDir()
	s.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ioErr(root, err)
	}

	if err := addRecursive(watcher, root, metaDir); err != nil {
		watcher.Close()
		return nil, ioErr(root, err)
	}

	signal := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()
		defer close(signal)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Dir(event.Name) == metaDir || event.Name == metaDir {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					select {
					case signal <- struct{}{}:
					default:
					}
				}
				if event.Op&fsnotify.Create != 0 {
					_ = watcher.Add(event.Name)
				}
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.LogErrf("watch: %v\n", watchErr)
			}
		}
	}()

	return signal, nil
}

// addRecursive registers a watch on root and every subdirectory
// except the hidden metadata directory; fsnotify only watches one
// level deep per call.
func addRecursive(watcher *fsnotify.Watcher, root, metaDir string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if p == metaDir {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}
