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

import "time"

// Status is the six-valued derived classification of spec.md §3.
// BothChanged is the bitwise union of RemoteChanged and LocalChanged
// so directory folds and single-file comparisons can share one type.
type Status int

const (
	BothUnchanged Status = 0
	RemoteOnly    Status = 1 << 0
	LocalOnly     Status = 1 << 1
	RemoteChanged Status = 1 << 2
	LocalChanged  Status = 1 << 3
	BothChanged   Status = RemoteChanged | LocalChanged
)

func (s Status) String() string {
	switch s {
	case BothUnchanged:
		return "BOTH_UNCHANGED"
	case RemoteOnly:
		return "REMOTE_ONLY"
	case LocalOnly:
		return "LOCAL_ONLY"
	case RemoteChanged:
		return "REMOTE_CHANGED"
	case LocalChanged:
		return "LOCAL_CHANGED"
	case BothChanged:
		return "BOTH_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// Entry is the central per-path record described in spec.md §3.
type Entry struct {
	Path         string
	IsDirectory  bool
	PresentLocal bool

	PresentRemote bool
	RemotePubDate time.Time

	LocalMtime time.Time

	DownloadedPubDate    time.Time
	HasDownloaded        bool
	DownloadedLocalMtime time.Time

	Description string
	Author      string
	AutoUpdate  bool

	Status Status

	// Children holds the direct children's paths, populated for
	// directory entries only, used by the bottom-up status fold.
	Children []string
}

func (e *Entry) hasRemotePubDate() bool {
	return e.PresentRemote && !e.RemotePubDate.IsZero()
}

// fileStatus computes the file-only status table from spec.md §3. It
// must not be called for directories; see foldDirectoryStatus.
func fileStatus(e *Entry) Status {
	switch {
	case e.PresentRemote && !e.PresentLocal:
		return RemoteOnly
	case !e.PresentRemote && e.PresentLocal:
		return LocalOnly
	case e.PresentRemote && e.PresentLocal:
		if !e.HasDownloaded {
			// Never downloaded, yet present on both sides: the local
			// copy is the user's own work.
			return LocalChanged
		}
		remoteNewer := e.RemotePubDate.After(e.DownloadedPubDate)
		localNewer := e.LocalMtime.After(e.DownloadedLocalMtime)
		switch {
		case remoteNewer && localNewer:
			return BothChanged
		case remoteNewer:
			return RemoteChanged
		case localNewer:
			return LocalChanged
		default:
			return BothUnchanged
		}
	default:
		// Neither present: should not normally occur, but report as
		// unchanged rather than panicking on a stale entry.
		return BothUnchanged
	}
}

// foldDirectoryStatus folds a set of child statuses into the
// directory's status per spec.md §3's table and §9's fixed contract:
// BOTH_CHANGED whenever both directions are present among descendants.
func foldDirectoryStatus(children []Status) Status {
	if len(children) == 0 {
		return BothUnchanged
	}

	allUnchanged := true
	sawRemoteDirection := false // RemoteOnly or RemoteChanged
	sawLocalDirection := false  // LocalOnly or LocalChanged
	allRemoteOnly := true
	allLocalOnly := true

	for _, cs := range children {
		if cs != BothUnchanged {
			allUnchanged = false
		}
		if cs != RemoteOnly {
			allRemoteOnly = false
		}
		if cs != LocalOnly {
			allLocalOnly = false
		}
		if cs == RemoteOnly || cs&RemoteChanged != 0 {
			sawRemoteDirection = true
		}
		if cs == LocalOnly || cs&LocalChanged != 0 {
			sawLocalDirection = true
		}
	}

	switch {
	case allUnchanged:
		return BothUnchanged
	case allRemoteOnly:
		return RemoteOnly
	case allLocalOnly:
		return LocalOnly
	case sawRemoteDirection && sawLocalDirection:
		return BothChanged
	case sawRemoteDirection:
		return RemoteChanged
	case sawLocalDirection:
		return LocalChanged
	default:
		return BothChanged
	}
}
