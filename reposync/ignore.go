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
	"errors"
	"path"
	"regexp"
	"strings"
)

// IgnoreFilter compiles a ';'-separated glob pattern list into a
// matcher over a path's basename and, separately, its full
// repository-relative form.
type IgnoreFilter struct {
	raw     string
	matcher *regexp.Regexp
}

// NewIgnoreFilter compiles patterns, a ';'-separated glob list. On a
// compile failure it returns BAD_PATTERN and a filter that matches
// nothing, preserving the caller's previous filter is the caller's
// responsibility (compile before replacing).
func NewIgnoreFilter(patterns string) (*IgnoreFilter, error) {
	clauses := siftClauses(patterns)
	if len(clauses) == 0 {
		return &IgnoreFilter{raw: patterns}, nil
	}

	regs := make([]string, 0, len(clauses))
	for _, clause := range clauses {
		re, err := globToRegexp(clause)
		if err != nil {
			return nil, badPatternErr(err)
		}
		regs = append(regs, re)
	}

	compiled, err := regexp.Compile(strings.Join(regs, "|"))
	if err != nil {
		return nil, badPatternErr(err)
	}

	return &IgnoreFilter{raw: patterns, matcher: compiled}, nil
}

// String returns the pattern list this filter was compiled from, the
// form persisted in config.json.
func (f *IgnoreFilter) String() string { return f.raw }

// Match reports whether repoPath should be hidden: a match against
// either its basename or its full repository-relative form hides it.
func (f *IgnoreFilter) Match(repoPath string) bool {
	if f == nil || f.matcher == nil {
		return false
	}
	base := path.Base(repoPath)
	return f.matcher.MatchString(base) || f.matcher.MatchString(repoPath)
}

func siftClauses(patterns string) []string {
	seen := map[string]bool{}
	var clauses []string
	for _, clause := range strings.Split(patterns, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" || seen[clause] {
			continue
		}
		seen[clause] = true
		clauses = append(clauses, clause)
	}
	return clauses
}

// globToRegexp translates a shell glob ('*', '?', character classes)
// into an anchored regexp fragment.
func globToRegexp(glob string) (string, error) {
	var b strings.Builder
	b.WriteString("^")

	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) {
				return "", errBadClass
			}
			b.WriteString("[")
			b.WriteString(regexp.QuoteMeta(string(runes[i+1 : j])))
			b.WriteString("]")
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	b.WriteString("$")

	pattern := b.String()
	if _, err := regexp.Compile(pattern); err != nil {
		return "", err
	}
	return pattern, nil
}

var errBadClass = errors.New("unterminated character class")
