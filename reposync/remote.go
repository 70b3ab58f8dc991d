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
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	flowrate "github.com/mxk/go-flowrate/flowrate"
	uuid "github.com/odeke-em/go-uuid"
	"github.com/odeke-em/statos"
	"golang.org/x/net/http/httpproxy"

	"github.com/mantidproject/scriptrepo-go/config"
)

const (
	connectTimeout = 15 * time.Second
	readTimeout    = 2 * time.Minute

	csrfCookieName  = "csrftoken"
	csrfFieldName   = "csrfmiddlewaretoken"
	deleteURLSuffix = "/delete"
)

// RemoteCatalogClient is the stateless HTTP collaborator of §4.5: one
// instance is safe for concurrent use across distinct paths since it
// holds no per-call state beyond the *http.Client.
type RemoteCatalogClient struct {
	catalogURL string
	uploadURL  string
	client     *http.Client

	// throttleBytesPerSec caps upload/download bandwidth when non-zero,
	// reviving the teacher's unused go-flowrate intent.
	throttleBytesPerSec int64
}

// NewRemoteCatalogClient builds a client honoring proxyHTTP (empty
// disables proxying) and the fixed connect/read timeouts of §4.5.
func NewRemoteCatalogClient(catalogURL, uploadURL, proxyHTTP string, throttleBytesPerSec int64) *RemoteCatalogClient {
	cfg := httpproxy.Config{}
	if proxyHTTP != "" {
		cfg.HTTPProxy = proxyHTTP
		cfg.HTTPSProxy = proxyHTTP
	}
	proxyFunc := cfg.ProxyFunc()

	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			return proxyFunc(req.URL)
		},
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}

	return &RemoteCatalogClient{
		catalogURL:          strings.TrimRight(catalogURL, "/"),
		uploadURL:           strings.TrimRight(uploadURL, "/"),
		client:              &http.Client{Transport: transport, Timeout: readTimeout},
		throttleBytesPerSec: throttleBytesPerSec,
	}
}

// FetchCatalog GETs the catalog URL and parses it into the same shape
// persisted in repository.json.
func (r *RemoteCatalogClient) FetchCatalog(ctx context.Context) (map[string]*config.RemoteRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.catalogURL, nil)
	if err != nil {
		return nil, networkErr(r.catalogURL, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, networkErr(r.catalogURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpErr(r.catalogURL, resp.StatusCode)
	}

	var catalog map[string]*config.RemoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, malformedCatalogErr(err)
	}
	return catalog, nil
}

// DownloadFile GETs catalogURL+"/"+repoPath, streaming into a
// sibling temp file and renaming into place only on full-body
// success. progress, if non-nil, receives each chunk's byte count.
func (r *RemoteCatalogClient) DownloadFile(ctx context.Context, repoPath, destAbs string, progress func(int)) error {
	remoteURL := r.catalogURL + RemoteSeparator + repoPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return networkErr(repoPath, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return networkErr(repoPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpErr(repoPath, resp.StatusCode)
	}

	destDir := filepath.Dir(destAbs)
	tmpName := filepath.Join(destDir, "."+uuid.New()+".tmp")
	tmp, err := os.Create(tmpName)
	if err != nil {
		return ioErr(tmpName, err)
	}

	var body io.Reader = resp.Body
	if r.throttleBytesPerSec > 0 {
		body = flowrate.NewReader(body, r.throttleBytesPerSec)
	}
	sr := statos.NewReader(body)
	if progress != nil {
		go func() {
			for n := range sr.ProgressChan() {
				progress(n)
			}
		}()
	}

	if _, err := io.Copy(tmp, sr); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return networkErr(repoPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ioErr(tmpName, err)
	}

	if err := os.Rename(tmpName, destAbs); err != nil {
		os.Remove(tmpName)
		return ioErr(destAbs, err)
	}
	return nil
}

// uploadResponse is POST <upload_url>'s JSON body.
type uploadResponse struct {
	PubDate time.Time `json:"pub_date"`
	Message string    `json:"message"`
}

// Upload performs the two-phase handshake of §4.5: a GET to collect
// the anti-forgery cookie, then a multipart POST carrying it.
func (r *RemoteCatalogClient) Upload(ctx context.Context, repoPath string, body io.Reader, size int64, comment, author, email string, progress func(int)) (time.Time, error) {
	csrf, err := r.fetchCSRFToken(ctx)
	if err != nil {
		return time.Time{}, err
	}

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	writeField := func(name, value string) error { return mw.WriteField(name, value) }
	if csrf != "" {
		if err := writeField(csrfFieldName, csrf); err != nil {
			return time.Time{}, ioErr(repoPath, err)
		}
	}
	if err := writeField("comment", comment); err != nil {
		return time.Time{}, ioErr(repoPath, err)
	}
	if err := writeField("author", author); err != nil {
		return time.Time{}, ioErr(repoPath, err)
	}
	if err := writeField("email", email); err != nil {
		return time.Time{}, ioErr(repoPath, err)
	}

	part, err := mw.CreateFormFile("script", filepath.Base(repoPath))
	if err != nil {
		return time.Time{}, ioErr(repoPath, err)
	}

	var throttled io.Reader = body
	if r.throttleBytesPerSec > 0 {
		throttled = flowrate.NewReader(body, r.throttleBytesPerSec)
	}
	sw := statos.NewReader(throttled)
	if progress != nil {
		go func() {
			for n := range sw.ProgressChan() {
				progress(n)
			}
		}()
	}
	if _, err := io.Copy(part, sw); err != nil {
		return time.Time{}, ioErr(repoPath, err)
	}
	if err := mw.Close(); err != nil {
		return time.Time{}, ioErr(repoPath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.uploadURL, strings.NewReader(buf.String()))
	if err != nil {
		return time.Time{}, networkErr(repoPath, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return time.Time{}, networkErr(repoPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return time.Time{}, remoteDeniedErr(repoPath, string(msg))
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return time.Time{}, malformedCatalogErr(err)
	}
	return parsed.PubDate, nil
}

// DeleteRemote POSTs to the delete endpoint using the same
// CSRF-cookie-then-multipart handshake as Upload; any non-2xx surfaces
// the server message as REMOTE_DENIED.
func (r *RemoteCatalogClient) DeleteRemote(ctx context.Context, repoPath, comment, author, email string) error {
	csrf, err := r.fetchCSRFToken(ctx)
	if err != nil {
		return err
	}

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	writeField := func(name, value string) error { return mw.WriteField(name, value) }
	if csrf != "" {
		if err := writeField(csrfFieldName, csrf); err != nil {
			return ioErr(repoPath, err)
		}
	}
	if err := writeField("path", repoPath); err != nil {
		return ioErr(repoPath, err)
	}
	if err := writeField("comment", comment); err != nil {
		return ioErr(repoPath, err)
	}
	if err := writeField("author", author); err != nil {
		return ioErr(repoPath, err)
	}
	if err := writeField("email", email); err != nil {
		return ioErr(repoPath, err)
	}
	if err := mw.Close(); err != nil {
		return ioErr(repoPath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.uploadURL+deleteURLSuffix, strings.NewReader(buf.String()))
	if err != nil {
		return networkErr(repoPath, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return networkErr(repoPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return remoteDeniedErr(repoPath, string(msg))
	}
	return nil
}

// fetchCSRFToken performs the anti-forgery GET of §4.5; an absent
// cookie is not an error (some deployments omit CSRF protection).
func (r *RemoteCatalogClient) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.uploadURL, nil)
	if err != nil {
		return "", networkErr(r.uploadURL, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", networkErr(r.uploadURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, c := range resp.Cookies() {
		if c.Name == csrfCookieName {
			return c.Value, nil
		}
	}
	return "", nil
}
