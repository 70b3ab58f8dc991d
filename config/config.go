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

// Package config owns everything that lives on disk for a script
// repository install: the hidden sidecar directory, its four JSON
// files, and resolution of the remote URLs and proxy from the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// RepositoryDirSuffix is the hidden metadata directory living at
	// the root of every installed repository.
	RepositoryDirSuffix = ".repository"

	repositoryFile = "repository.json"
	localFile      = "local.json"
	downloadedFile = "downloaded.json"
	configFile     = "config.json"
)

// Environment keys consulted at Load time, per the wire protocol.
const (
	EnvCatalogURL = "ScriptRepository"
	EnvUploadURL  = "UploaderWebServer"
	EnvLocalRoot  = "ScriptLocalRepository"
	EnvProxyHTTP  = "proxy.http"
)

// DefaultIgnorePatterns hides byte-compiled artifacts and hidden files.
const DefaultIgnorePatterns = "*.pyc;*.pyo;.*"

var (
	ErrNoRepositoryContext = errors.New("no script repository found; run install or cd into an installed directory")
	ErrNotADirectory       = errors.New("path exists and is not a directory")
)

// Kind selects one of the three per-path sidecars.
type Kind int

const (
	RepositoryKind Kind = iota
	LocalKind
	DownloadedKind
)

func (k Kind) filename() string {
	switch k {
	case RepositoryKind:
		return repositoryFile
	case LocalKind:
		return localFile
	case DownloadedKind:
		return downloadedFile
	default:
		return ""
	}
}

// RemoteRecord is repository.json's per-path value: the last observed
// remote catalog entry.
type RemoteRecord struct {
	Directory   bool      `json:"directory"`
	PubDate     time.Time `json:"pub_date"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
}

// LocalRecord is local.json's per-path value: user-owned state that
// survives a reload.
type LocalRecord struct {
	AutoUpdate bool      `json:"auto_update"`
	LocalMtime time.Time `json:"local_mtime"`
}

// DownloadedRecord is downloaded.json's per-path value: the snapshot
// taken at the moment of the last successful download.
type DownloadedRecord struct {
	DownloadedPubDate     time.Time `json:"downloaded_pub_date"`
	DownloadedLocalMtime  time.Time `json:"downloaded_local_mtime"`
}

// FileConfig is config.json's shape.
type FileConfig struct {
	IgnorePatterns string `json:"ignore_patterns"`
	RemoteURL      string `json:"remote_url,omitempty"`
	UploadURL      string `json:"upload_url,omitempty"`
}

// Context owns the on-disk state of one installed repository: the
// three per-path sidecars plus config.json, all guarded by one mutex
// so callers (reposync.Synchronizer) can treat it as a single
// in-memory source of truth between flushes.
type Context struct {
	AbsPath string

	mu         sync.Mutex
	remote     map[string]*RemoteRecord
	local      map[string]*LocalRecord
	downloaded map[string]*DownloadedRecord
	fileConfig FileConfig

	// CatalogURL/UploadURL/ProxyHTTP are the resolved session values:
	// a non-empty URL set by Connect wins, otherwise the environment,
	// then config.json.
	CatalogURL string
	UploadURL  string
	ProxyHTTP  string
}

// NewContext constructs a Context over an (already resolved) absolute
// install root. It does not touch disk; call Load to populate it.
func NewContext(absPath string) *Context {
	return &Context{
		AbsPath:    absPath,
		remote:     map[string]*RemoteRecord{},
		local:      map[string]*LocalRecord{},
		downloaded: map[string]*DownloadedRecord{},
	}
}

func (c *Context) RepositoryDir() string {
	return filepath.Join(c.AbsPath, RepositoryDirSuffix)
}

func (c *Context) sidecarPath(kind Kind) string {
	return filepath.Join(c.RepositoryDir(), kind.filename())
}

func (c *Context) configPath() string {
	return filepath.Join(c.RepositoryDir(), configFile)
}

// Load reads all four sidecars. A missing file yields an empty map (or
// a FileConfig holding only DefaultIgnorePatterns); a malformed one is reported with the offending
// path so the caller can wrap it as CORRUPT_METADATA.
func (c *Context) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := loadJSON(c.sidecarPath(RepositoryKind), &c.remote); err != nil {
		return err
	}
	if c.remote == nil {
		c.remote = map[string]*RemoteRecord{}
	}
	if err := loadJSON(c.sidecarPath(LocalKind), &c.local); err != nil {
		return err
	}
	if c.local == nil {
		c.local = map[string]*LocalRecord{}
	}
	if err := loadJSON(c.sidecarPath(DownloadedKind), &c.downloaded); err != nil {
		return err
	}
	if c.downloaded == nil {
		c.downloaded = map[string]*DownloadedRecord{}
	}

	fc := FileConfig{}
	if err := loadJSON(c.configPath(), &fc); err != nil {
		return err
	}
	if fc.IgnorePatterns == "" {
		fc.IgnorePatterns = DefaultIgnorePatterns
	}
	c.fileConfig = fc

	c.resolveLocked()
	return nil
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// resolveLocked computes CatalogURL/UploadURL/ProxyHTTP: environment
// first, then config.json, per the wire protocol in spec.md §6.
func (c *Context) resolveLocked() {
	c.CatalogURL = firstNonEmpty(os.Getenv(EnvCatalogURL), c.fileConfig.RemoteURL)
	c.UploadURL = firstNonEmpty(os.Getenv(EnvUploadURL), c.fileConfig.UploadURL)
	c.ProxyHTTP = os.Getenv(EnvProxyHTTP)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IgnorePatterns returns the persisted pattern string.
func (c *Context) IgnorePatterns() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileConfig.IgnorePatterns
}

// SetIgnorePatterns updates the in-memory pattern string; callers
// persist it to config.json with FlushConfig.
func (c *Context) SetIgnorePatterns(patterns string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fileConfig.IgnorePatterns = patterns
}

// SetSessionURLs overrides CatalogURL/UploadURL for the session only
// (reposync.Synchronizer.Connect); it does not persist to config.json.
func (c *Context) SetSessionURLs(catalogURL, uploadURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if catalogURL != "" {
		c.CatalogURL = catalogURL
	}
	if uploadURL != "" {
		c.UploadURL = uploadURL
	}
}

// Remote, Local, Downloaded return read-only snapshots (shallow
// copies of the map, not of the records) of each sidecar.
func (c *Context) Remote() map[string]*RemoteRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*RemoteRecord, len(c.remote))
	for k, v := range c.remote {
		out[k] = v
	}
	return out
}

func (c *Context) Local() map[string]*LocalRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*LocalRecord, len(c.local))
	for k, v := range c.local {
		out[k] = v
	}
	return out
}

func (c *Context) Downloaded() map[string]*DownloadedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*DownloadedRecord, len(c.downloaded))
	for k, v := range c.downloaded {
		out[k] = v
	}
	return out
}

func (c *Context) PutRemote(path string, rec *RemoteRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote[path] = rec
}

func (c *Context) PutLocal(path string, rec *LocalRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[path] = rec
}

func (c *Context) PutDownloaded(path string, rec *DownloadedRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloaded[path] = rec
}

func (c *Context) DeleteRemote(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.remote, path)
}

func (c *Context) DeleteDownloaded(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.downloaded, path)
}

// ReplaceRemote swaps the entire remote snapshot, used after a fresh
// catalog fetch (install, check4update).
func (c *Context) ReplaceRemote(m map[string]*RemoteRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = m
}

// Flush atomically persists one sidecar kind: write to a sibling
// "*.tmp" then rename over the target, so readers never observe a
// partial write.
func (c *Context) Flush(kind Kind) error {
	c.mu.Lock()
	var payload interface{}
	switch kind {
	case RepositoryKind:
		payload = c.remote
	case LocalKind:
		payload = c.local
	case DownloadedKind:
		payload = c.downloaded
	}
	c.mu.Unlock()

	return atomicWriteJSON(c.sidecarPath(kind), payload)
}

// FlushConfig atomically persists config.json.
func (c *Context) FlushConfig() error {
	c.mu.Lock()
	fc := c.fileConfig
	c.mu.Unlock()
	return atomicWriteJSON(c.configPath(), fc)
}

func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Discover walks up from startAbsPath looking for a RepositoryDirSuffix
// directory, the way the teacher's config.Discover walks up looking
// for ".gd".
func Discover(startAbsPath string) (*Context, error) {
	p := startAbsPath
	for {
		info, err := os.Stat(filepath.Join(p, RepositoryDirSuffix))
		if err == nil && info.IsDir() {
			ctx := NewContext(p)
			if loadErr := ctx.Load(); loadErr != nil {
				return nil, loadErr
			}
			return ctx, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return nil, ErrNoRepositoryContext
}

// Initialize creates absPath and its RepositoryDirSuffix subdirectory.
// firstInit is false (and force must be true to proceed) when the
// metadata directory already exists.
func Initialize(absPath string, force bool) (ctx *Context, firstInit bool, err error) {
	repoDir := filepath.Join(absPath, RepositoryDirSuffix)

	info, statErr := os.Stat(repoDir)
	switch {
	case statErr == nil:
		if !info.IsDir() {
			return nil, false, ErrNotADirectory
		}
		if !force {
			return nil, false, fmt.Errorf("%s already contains an installed repository", absPath)
		}
	case os.IsNotExist(statErr):
		firstInit = true
	default:
		return nil, false, statErr
	}

	if err = os.MkdirAll(repoDir, 0755); err != nil {
		return nil, firstInit, err
	}

	ctx = NewContext(absPath)
	ctx.fileConfig = FileConfig{IgnorePatterns: DefaultIgnorePatterns}
	ctx.resolveLocked()

	if err = ctx.FlushConfig(); err != nil {
		return nil, firstInit, err
	}
	for _, kind := range []Kind{RepositoryKind, LocalKind, DownloadedKind} {
		if err = ctx.Flush(kind); err != nil {
			return nil, firstInit, err
		}
	}

	return ctx, firstInit, nil
}

// DeInitialize removes the metadata directory, prompting first via the
// supplied function (mirrors the teacher's Context.DeInitialize).
func (c *Context) DeInitialize(prompter func(...interface{}) bool) error {
	repoDir := c.RepositoryDir()
	if !prompter("remove: ", repoDir, ". This operation is permanent (Y/N) ") {
		return nil
	}
	return os.RemoveAll(repoDir)
}
