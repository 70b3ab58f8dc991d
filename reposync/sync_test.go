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
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	applog "github.com/odeke-em/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/mantidproject/scriptrepo-go/config"
)

func testLogger() *applog.Logger {
	return applog.New(os.Stdin, os.Stdout, os.Stderr)
}

// newTestSynchronizer initializes a fresh install root and wires its
// Synchronizer's remote client through gock, without going through
// Install (which would build its own unintercepted client internally).
func newTestSynchronizer(t *testing.T, catalogURL, uploadURL string) (*Synchronizer, string) {
	t.Helper()
	dir := t.TempDir()

	ctx, _, err := config.Initialize(dir, false)
	require.NoError(t, err)
	ctx.SetSessionURLs(catalogURL, uploadURL)

	s := NewSynchronizer(testLogger())
	s.ctx = ctx
	require.NoError(t, s.rebuildLocked())
	gock.InterceptClient(s.remote.client)

	return s, dir
}

func fetchAndSeedCatalog(t *testing.T, s *Synchronizer) {
	t.Helper()
	catalog, err := s.remote.FetchCatalog(context.Background())
	require.NoError(t, err)
	s.ctx.ReplaceRemote(catalog)
	require.NoError(t, s.ctx.Flush(config.RepositoryKind))
}

func TestSynchronizerListFilesAfterCatalogFetch(t *testing.T) {
	defer gock.Off()

	gock.New("http://catalog.example.com").
		Get("/").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{
			"a.py": map[string]interface{}{"directory": false, "pub_date": time.Now().Format(time.RFC3339)},
		})

	s, _ := newTestSynchronizer(t, "http://catalog.example.com", "")
	fetchAndSeedCatalog(t, s)

	paths, err := s.ListFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, paths)

	status, err := s.FileStatus("a.py")
	require.NoError(t, err)
	assert.Equal(t, RemoteOnly, status)
}

func TestSynchronizerDownloadThenRedownloadBacksUpLocalEdit(t *testing.T) {
	defer gock.Off()

	body := "print('hello')"
	gock.New("http://catalog.example.com").
		Get("/").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{
			"a.py": map[string]interface{}{"directory": false, "pub_date": time.Now().Format(time.RFC3339)},
		})
	gock.New("http://catalog.example.com").
		Get("/a.py").
		Reply(http.StatusOK).
		BodyString(body)

	s, dir := newTestSynchronizer(t, "http://catalog.example.com", "")
	fetchAndSeedCatalog(t, s)
	_, err := s.ListFiles()
	require.NoError(t, err)

	require.NoError(t, s.Download("a.py", nil))

	data, err := os.ReadFile(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	status, err := s.FileStatus("a.py")
	require.NoError(t, err)
	assert.Equal(t, BothUnchanged, status)

	// Edit locally, rescan: status should flip to LOCAL_CHANGED.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("print('edited')"), 0644))
	_, err = s.ListFiles()
	require.NoError(t, err)
	status, err = s.FileStatus("a.py")
	require.NoError(t, err)
	assert.Equal(t, LocalChanged, status)

	// Re-download must back up the edited copy before overwriting it.
	gock.New("http://catalog.example.com").
		Get("/a.py").
		Reply(http.StatusOK).
		BodyString(body)
	require.NoError(t, s.Download("a.py", nil))

	backup, err := os.ReadFile(filepath.Join(dir, "a.py"+backupSuffix))
	require.NoError(t, err)
	assert.Equal(t, "print('edited')", string(backup))

	restored, err := os.ReadFile(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, body, string(restored))
}

func TestSynchronizerUploadNewLocalFile(t *testing.T) {
	defer gock.Off()

	gock.New("http://catalog.example.com").
		Get("/").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{})
	gock.New("http://upload.example.com").
		Get("/").
		Reply(http.StatusOK)
	gock.New("http://upload.example.com").
		Post("/").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{"pub_date": time.Now().Format(time.RFC3339)})

	s, dir := newTestSynchronizer(t, "http://catalog.example.com", "http://upload.example.com")
	fetchAndSeedCatalog(t, s)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.py"), []byte("print(1)"), 0644))
	_, err := s.ListFiles()
	require.NoError(t, err)

	status, err := s.FileStatus("new.py")
	require.NoError(t, err)
	require.Equal(t, LocalOnly, status)

	err = s.Upload("new.py", "first upload", "Me", "me@example.com", nil)
	require.NoError(t, err)

	status, err = s.FileStatus("new.py")
	require.NoError(t, err)
	assert.Equal(t, BothUnchanged, status)
}

func TestSynchronizerUploadMissingIdentityRejected(t *testing.T) {
	defer gock.Off()

	gock.New("http://catalog.example.com").
		Get("/").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{})

	s, dir := newTestSynchronizer(t, "http://catalog.example.com", "http://upload.example.com")
	fetchAndSeedCatalog(t, s)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.py"), []byte("print(1)"), 0644))
	_, err := s.ListFiles()
	require.NoError(t, err)

	err = s.Upload("new.py", "a comment", "", "", nil)
	require.Error(t, err)

	var repoErr *Error
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, StatusMissingIdentity, repoErr.Status)
}

func TestSynchronizerConcurrentActionOnSamePathIsBusy(t *testing.T) {
	defer gock.Off()

	gock.New("http://catalog.example.com").
		Get("/").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{
			"a.py": map[string]interface{}{"directory": false},
		})

	s, _ := newTestSynchronizer(t, "http://catalog.example.com", "")
	fetchAndSeedCatalog(t, s)
	_, err := s.ListFiles()
	require.NoError(t, err)

	require.NoError(t, s.claimSlot("a.py", actionDownload))
	defer s.releaseSlot("a.py")

	err = s.claimSlot("a.py", actionUpload)
	require.Error(t, err)

	var repoErr *Error
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, StatusBusy, repoErr.Status)
}

func TestSynchronizerCheck4UpdateDownloadsAutoUpdateCandidates(t *testing.T) {
	defer gock.Off()

	gock.New("http://catalog.example.com").
		Get("/").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{
			"a.py": map[string]interface{}{"directory": false, "pub_date": time.Now().Format(time.RFC3339)},
		})
	gock.New("http://catalog.example.com").
		Get("/a.py").
		Reply(http.StatusOK).
		BodyString("print(1)")

	s, _ := newTestSynchronizer(t, "http://catalog.example.com", "")
	s.ctx.PutLocal("a.py", &config.LocalRecord{AutoUpdate: true})

	succeeded, err := s.Check4Update()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, succeeded)

	status, err := s.FileStatus("a.py")
	require.NoError(t, err)
	assert.Equal(t, BothUnchanged, status)
}
