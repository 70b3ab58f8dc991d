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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantidproject/scriptrepo-go/config"
)

func TestMergeEntriesFreshInstall(t *testing.T) {
	in := MergeInputs{
		Remote: map[string]*config.RemoteRecord{
			"a.py":      {Directory: false},
			"inel":      {Directory: true},
			"inel/a.py": {Directory: false},
		},
	}
	ignore, err := NewIgnoreFilter("")
	require.NoError(t, err)

	entries, conflicts := MergeEntries(in, ignore)
	require.Empty(t, conflicts)

	assert.Equal(t, RemoteOnly, entries["a.py"].Status)
	assert.Equal(t, RemoteOnly, entries["inel/a.py"].Status)
	assert.Equal(t, RemoteOnly, entries["inel"].Status)
	assert.ElementsMatch(t, []string{"a.py", "inel", "inel/a.py"}, SortedPaths(entries))
}

func TestMergeEntriesShapeConflictMarksBothChangedButContinues(t *testing.T) {
	in := MergeInputs{
		Remote: map[string]*config.RemoteRecord{
			"x": {Directory: true},
		},
		Scanned: []ScanEntry{
			{Path: "x", IsDirectory: false, Mtime: time.Now()},
			{Path: "y", IsDirectory: false, Mtime: time.Now()},
		},
	}
	ignore, err := NewIgnoreFilter("")
	require.NoError(t, err)

	entries, conflicts := MergeEntries(in, ignore)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "x", conflicts[0].Path)
	assert.Equal(t, StatusShapeConflict, conflicts[0].Status)

	assert.Equal(t, BothChanged, entries["x"].Status)
	assert.Equal(t, LocalOnly, entries["y"].Status)
}

func TestMergeEntriesAncestorFoldBecomesUnchangedOnceChildDownloaded(t *testing.T) {
	now := time.Now()
	in := MergeInputs{
		Remote: map[string]*config.RemoteRecord{
			"inel":      {Directory: true, PubDate: now},
			"inel/a.py": {Directory: false, PubDate: now},
		},
		Scanned: []ScanEntry{
			{Path: "inel/a.py", IsDirectory: false, Mtime: now},
		},
		Downloaded: map[string]*config.DownloadedRecord{
			"inel/a.py": {DownloadedPubDate: now, DownloadedLocalMtime: now},
		},
	}
	ignore, err := NewIgnoreFilter("")
	require.NoError(t, err)

	entries, conflicts := MergeEntries(in, ignore)
	require.Empty(t, conflicts)

	assert.Equal(t, BothUnchanged, entries["inel/a.py"].Status)
	assert.Equal(t, BothUnchanged, entries["inel"].Status)
}

func TestMergeEntriesPrunesEmptySyntheticDirectories(t *testing.T) {
	in := MergeInputs{
		Scanned: []ScanEntry{
			{Path: "a/b.py", IsDirectory: false, Mtime: time.Now()},
		},
	}
	ignore, err := NewIgnoreFilter("")
	require.NoError(t, err)

	entries, _ := MergeEntries(in, ignore)
	require.Contains(t, entries, "a/b.py")
	require.Contains(t, entries, "a")

	// Now the same scan without the only child: "a" must not survive
	// as a dangling synthesized directory.
	in2 := MergeInputs{}
	entries2, _ := MergeEntries(in2, ignore)
	assert.NotContains(t, entries2, "a")
}

func TestMergeEntriesAppliesIgnoreUnlessRemotePresent(t *testing.T) {
	in := MergeInputs{
		Remote: map[string]*config.RemoteRecord{
			"keep.py": {Directory: false},
		},
		Scanned: []ScanEntry{
			{Path: "keep.py", IsDirectory: false, Mtime: time.Now()},
			{Path: "skip.pyc", IsDirectory: false, Mtime: time.Now()},
		},
	}
	ignore, err := NewIgnoreFilter("*.pyc")
	require.NoError(t, err)

	entries, _ := MergeEntries(in, ignore)
	assert.Contains(t, entries, "keep.py")
	assert.NotContains(t, entries, "skip.pyc")
}
