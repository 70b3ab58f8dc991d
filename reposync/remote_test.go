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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"
)

func newTestClient(catalogURL, uploadURL string) *RemoteCatalogClient {
	r := NewRemoteCatalogClient(catalogURL, uploadURL, "", 0)
	gock.InterceptClient(r.client)
	return r
}

func TestFetchCatalogDecodesJSON(t *testing.T) {
	defer gock.Off()

	gock.New("http://catalog.example.com").
		Get("/").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{
			"a.py": map[string]interface{}{"directory": false},
		})

	r := newTestClient("http://catalog.example.com", "")
	catalog, err := r.FetchCatalog(context.Background())
	require.NoError(t, err)
	require.Contains(t, catalog, "a.py")
	assert.False(t, catalog["a.py"].Directory)
}

func TestFetchCatalogHTTPError(t *testing.T) {
	defer gock.Off()

	gock.New("http://catalog.example.com").
		Get("/").
		Reply(http.StatusInternalServerError)

	r := newTestClient("http://catalog.example.com", "")
	_, err := r.FetchCatalog(context.Background())
	require.Error(t, err)

	var repoErr *Error
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, StatusHTTPError, repoErr.Status)
}

func TestDownloadFileWritesThroughTempRename(t *testing.T) {
	defer gock.Off()

	gock.New("http://catalog.example.com").
		Get("/a.py").
		Reply(http.StatusOK).
		BodyString("print('hi')")

	dir := t.TempDir()
	dest := filepath.Join(dir, "a.py")

	r := newTestClient("http://catalog.example.com", "")
	err := r.DownloadFile(context.Background(), "a.py", dest, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"))
	}
}

func TestDownloadFileReportsProgress(t *testing.T) {
	defer gock.Off()

	gock.New("http://catalog.example.com").
		Get("/a.py").
		Reply(http.StatusOK).
		BodyString("print('hi')")

	dir := t.TempDir()
	dest := filepath.Join(dir, "a.py")

	var total int
	r := newTestClient("http://catalog.example.com", "")
	err := r.DownloadFile(context.Background(), "a.py", dest, func(n int) { total += n })
	require.NoError(t, err)
	assert.Equal(t, len("print('hi')"), total)
}

func TestUploadReportsProgress(t *testing.T) {
	defer gock.Off()

	gock.New("http://upload.example.com").
		Get("/").
		Reply(http.StatusOK)
	gock.New("http://upload.example.com").
		Post("/").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{"pub_date": time.Now().Format(time.RFC3339)})

	body := "print(1)"
	var total int
	r := newTestClient("http://catalog.example.com", "http://upload.example.com")
	_, err := r.Upload(context.Background(), "a.py", strings.NewReader(body), int64(len(body)), "c", "me", "me@example.com", func(n int) { total += n })
	require.NoError(t, err)
	assert.Equal(t, len(body), total)
}

func TestDeleteRemoteSendsMultipartBody(t *testing.T) {
	defer gock.Off()

	gock.New("http://upload.example.com").
		Get("/").
		Reply(http.StatusOK).
		SetHeader("Set-Cookie", "csrftoken=tok123; Path=/")
	gock.New("http://upload.example.com").
		Post("/delete").
		MatchHeader("Content-Type", "^multipart/form-data; boundary=").
		Reply(http.StatusOK)

	r := newTestClient("http://catalog.example.com", "http://upload.example.com")
	err := r.DeleteRemote(context.Background(), "a.py", "why", "me", "me@example.com")
	require.NoError(t, err)
}

func TestDeleteRemoteNonOKIsRemoteDenied(t *testing.T) {
	defer gock.Off()

	gock.New("http://upload.example.com").
		Get("/").
		Reply(http.StatusOK)
	gock.New("http://upload.example.com").
		Post("/delete").
		Reply(http.StatusForbidden).
		BodyString("no")

	r := newTestClient("http://catalog.example.com", "http://upload.example.com")
	err := r.DeleteRemote(context.Background(), "a.py", "why", "me", "me@example.com")
	require.Error(t, err)

	var repoErr *Error
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, StatusRemoteDenied, repoErr.Status)
}
