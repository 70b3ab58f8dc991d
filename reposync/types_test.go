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
)

func TestFileStatus(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	testCases := []struct {
		name string
		e    *Entry
		want Status
	}{
		{
			name: "remote only",
			e:    &Entry{PresentRemote: true},
			want: RemoteOnly,
		},
		{
			name: "local only",
			e:    &Entry{PresentLocal: true},
			want: LocalOnly,
		},
		{
			name: "present both, never downloaded",
			e:    &Entry{PresentRemote: true, PresentLocal: true, HasDownloaded: false},
			want: LocalChanged,
		},
		{
			name: "unchanged since download",
			e: &Entry{
				PresentRemote: true, PresentLocal: true, HasDownloaded: true,
				RemotePubDate: earlier, DownloadedPubDate: earlier,
				LocalMtime: earlier, DownloadedLocalMtime: earlier,
			},
			want: BothUnchanged,
		},
		{
			name: "remote changed only",
			e: &Entry{
				PresentRemote: true, PresentLocal: true, HasDownloaded: true,
				RemotePubDate: now, DownloadedPubDate: earlier,
				LocalMtime: earlier, DownloadedLocalMtime: earlier,
			},
			want: RemoteChanged,
		},
		{
			name: "local changed only",
			e: &Entry{
				PresentRemote: true, PresentLocal: true, HasDownloaded: true,
				RemotePubDate: earlier, DownloadedPubDate: earlier,
				LocalMtime: now, DownloadedLocalMtime: earlier,
			},
			want: LocalChanged,
		},
		{
			name: "both changed",
			e: &Entry{
				PresentRemote: true, PresentLocal: true, HasDownloaded: true,
				RemotePubDate: now, DownloadedPubDate: earlier,
				LocalMtime: now, DownloadedLocalMtime: earlier,
			},
			want: BothChanged,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, fileStatus(tc.e))
		})
	}
}

func TestFoldDirectoryStatus(t *testing.T) {
	testCases := []struct {
		name     string
		children []Status
		want     Status
	}{
		{name: "empty", children: nil, want: BothUnchanged},
		{name: "all unchanged", children: []Status{BothUnchanged, BothUnchanged}, want: BothUnchanged},
		{name: "all remote only", children: []Status{RemoteOnly, RemoteOnly}, want: RemoteOnly},
		{name: "all local only", children: []Status{LocalOnly, LocalOnly}, want: LocalOnly},
		{name: "remote direction only", children: []Status{RemoteOnly, RemoteChanged}, want: RemoteChanged},
		{name: "local direction only", children: []Status{LocalOnly, LocalChanged}, want: LocalChanged},
		{name: "both directions", children: []Status{RemoteOnly, LocalOnly}, want: BothChanged},
		{name: "one both-changed child forces both", children: []Status{BothUnchanged, BothChanged}, want: BothChanged},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, foldDirectoryStatus(tc.children))
		})
	}
}
