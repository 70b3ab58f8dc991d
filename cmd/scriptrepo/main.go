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

// Package contains the main entry point of scriptrepo, the CLI shell
// around the reposync engine.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	spinner "github.com/odeke-em/cli-spinner"
	"github.com/odeke-em/command"
	"github.com/odeke-em/log"
	prettywords "github.com/odeke-em/pretty-words"
	"gopkg.in/yaml.v3"

	"github.com/cheggaaa/pb"

	"github.com/mantidproject/scriptrepo-go/config"
	"github.com/mantidproject/scriptrepo-go/reposync"
)

const (
	installKey    = "install"
	listKey       = "list"
	statusKey     = "status"
	downloadKey   = "download"
	uploadKey     = "upload"
	removeKey     = "remove"
	checkKey      = "check"
	ignoreKey     = "ignore"
	autoupdateKey = "autoupdate"
	helpKey       = "help"
)

var logger = log.New(os.Stdin, os.Stdout, os.Stderr)

// identity caches author/email across sessions at the CLI layer
// only; reposync.Synchronizer never reads or writes it (SPEC_FULL.md
// §2a/§9's open-question decision).
type identity struct {
	Author string `yaml:"author"`
	Email  string `yaml:"email"`
}

func identityPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.scriptrepo/identity.yaml"
}

func loadIdentity() identity {
	var id identity
	p := identityPath()
	if p == "" {
		return id
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return id
	}
	_ = yaml.Unmarshal(data, &id)
	return id
}

func saveIdentity(id identity) {
	p := identityPath()
	if p == "" {
		return
	}
	data, err := yaml.Marshal(id)
	if err != nil {
		return
	}
	if err := os.MkdirAll(p[:len(p)-len("/identity.yaml")], 0755); err != nil {
		return
	}
	_ = os.WriteFile(p, data, 0600)
}

func isTty() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// openSynchronizer finds the enclosing install by walking up from the
// working directory, the same way config.Discover does for the
// teacher's ".gd" directory.
func openSynchronizer() (*reposync.Synchronizer, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	ctx, err := config.Discover(cwd)
	if err != nil {
		return nil, err
	}
	return reposync.FromContext(ctx, logger)
}

func exitWithError(err error) {
	if err == nil {
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}

func main() {
	command.On(installKey, "install a script repository", &installCmd{}, []string{})
	command.On(listKey, "list tracked entries and their status", &listCmd{}, []string{})
	command.On(statusKey, "show one entry's status", &statusCmd{}, []string{})
	command.On(downloadKey, "download an entry from the remote catalog", &downloadCmd{}, []string{})
	command.On(uploadKey, "upload a local entry", &uploadCmd{}, []string{})
	command.On(removeKey, "delete a remote entry", &removeCmd{}, []string{})
	command.On(checkKey, "fetch the catalog and auto-update", &checkCmd{}, []string{})
	command.On(ignoreKey, "get or set the ignore-pattern string", &ignoreCmd{}, []string{})
	command.On(autoupdateKey, "toggle auto-update for an entry", &autoupdateCmd{}, []string{})

	command.DefineHelp(&helpCmd{})
	command.ParseAndRun()
}

var helpBody = []string{
	"scriptrepo synchronizes a local directory against a remote script catalog.",
	"install -root <dir>            create a repository at <dir>",
	"list                            show every tracked entry and its status",
	"status -path <p>                show one entry's status",
	"download -path <p>              download an entry (directories recurse)",
	"upload -path <p> -comment <c>   upload a local entry",
	"remove -path <p> -comment <c>   delete a remote entry",
	"check                           fetch the catalog and auto-update",
	"ignore -patterns <list>         get or set the ';'-separated ignore list",
	"autoupdate -path <p> -on <bool> toggle auto-update for an entry",
}

type helpCmd struct{}

func (c *helpCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }
func (c *helpCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	pr := prettywords.PrettyRubric{Limit: 80, Body: helpBody}
	for _, line := range pr.Format() {
		fmt.Fprintln(os.Stdout, line)
	}
	exitWithError(nil)
}

type installCmd struct {
	root  string
	force bool
}

func (c *installCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.StringVar(&c.root, "root", ".", "install root")
	fs.BoolVar(&c.force, "force", false, "reinstall over an existing metadata directory")
	return fs
}

func (c *installCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	spin := spinner.New(10)
	spin.Start()
	defer spin.Stop()

	s := reposync.NewSynchronizer(logger)
	err := s.Install(c.root, c.force)
	exitWithError(err)
}

type listCmd struct{}

func (c *listCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }
func (c *listCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	s, err := openSynchronizer()
	if err != nil {
		exitWithError(err)
		return
	}
	paths, err := s.ListFiles()
	if err != nil {
		exitWithError(err)
		return
	}
	for _, p := range paths {
		status, _ := s.FileStatus(p)
		fmt.Fprintf(os.Stdout, "%-10s %s\n", status, p)
	}
	exitWithError(nil)
}

type statusCmd struct{ path string }

func (c *statusCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.StringVar(&c.path, "path", "", "entry path")
	return fs
}
func (c *statusCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	s, err := openSynchronizer()
	if err != nil {
		exitWithError(err)
		return
	}
	st, err := s.FileStatus(c.path)
	if err != nil {
		exitWithError(err)
		return
	}
	fmt.Fprintln(os.Stdout, st)
	exitWithError(nil)
}

type downloadCmd struct{ path string }

func (c *downloadCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.StringVar(&c.path, "path", "", "entry path")
	return fs
}
func (c *downloadCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	s, err := openSynchronizer()
	if err != nil {
		exitWithError(err)
		return
	}

	var bar *pb.ProgressBar
	var progress func(int)
	if isTty() {
		bar = pb.New64(0)
		bar.Start()
		defer bar.Finish()
		progress = func(n int) { bar.Add64(int64(n)) }
	}

	err = s.Download(c.path, progress)
	exitWithError(err)
}

type uploadCmd struct {
	path, comment string
}

func (c *uploadCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.StringVar(&c.path, "path", "", "entry path")
	fs.StringVar(&c.comment, "comment", "", "upload comment")
	return fs
}
func (c *uploadCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	s, err := openSynchronizer()
	if err != nil {
		exitWithError(err)
		return
	}
	var bar *pb.ProgressBar
	var progress func(int)
	if isTty() {
		bar = pb.New64(0)
		bar.Start()
		defer bar.Finish()
		progress = func(n int) { bar.Add64(int64(n)) }
	}

	id := loadIdentity()
	if err := s.Upload(c.path, c.comment, id.Author, id.Email, progress); err != nil {
		exitWithError(err)
		return
	}
	saveIdentity(id)
	exitWithError(nil)
}

type removeCmd struct {
	path, comment string
}

func (c *removeCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.StringVar(&c.path, "path", "", "entry path")
	fs.StringVar(&c.comment, "comment", "", "removal reason")
	return fs
}
func (c *removeCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	s, err := openSynchronizer()
	if err != nil {
		exitWithError(err)
		return
	}
	id := loadIdentity()
	exitWithError(s.Remove(c.path, c.comment, id.Author, id.Email))
}

type checkCmd struct{}

func (c *checkCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }
func (c *checkCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	s, err := openSynchronizer()
	if err != nil {
		exitWithError(err)
		return
	}
	succeeded, err := s.Check4Update()
	for _, p := range succeeded {
		fmt.Fprintf(os.Stdout, "updated %s\n", p)
	}
	exitWithError(err)
}

type ignoreCmd struct{ patterns string }

func (c *ignoreCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.StringVar(&c.patterns, "patterns", "", "';'-separated glob list; empty prints the current value")
	return fs
}
func (c *ignoreCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	s, err := openSynchronizer()
	if err != nil {
		exitWithError(err)
		return
	}
	if c.patterns == "" {
		fmt.Fprintln(os.Stdout, s.IgnorePatterns())
		exitWithError(nil)
		return
	}
	exitWithError(s.SetIgnorePatterns(c.patterns))
}

type autoupdateCmd struct {
	path string
	flag bool
}

func (c *autoupdateCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.StringVar(&c.path, "path", "", "entry path")
	fs.BoolVar(&c.flag, "on", true, "enable or disable auto-update")
	return fs
}
func (c *autoupdateCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	s, err := openSynchronizer()
	if err != nil {
		exitWithError(err)
		return
	}
	count, err := s.SetAutoUpdate(c.path, c.flag)
	if err != nil {
		exitWithError(err)
		return
	}
	fmt.Fprintf(os.Stdout, "%d file(s) changed\n", count)
	exitWithError(nil)
}
