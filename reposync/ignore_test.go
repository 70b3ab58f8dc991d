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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreFilterMatch(t *testing.T) {
	f, err := NewIgnoreFilter("*.pyc; .git; build/?og")
	require.NoError(t, err)

	assert.True(t, f.Match("a/b.pyc"))
	assert.True(t, f.Match(".git"))
	assert.True(t, f.Match("a/.git"))
	assert.True(t, f.Match("build/log"))
	assert.False(t, f.Match("a/b.py"))
}

func TestIgnoreFilterEmptyMatchesNothing(t *testing.T) {
	f, err := NewIgnoreFilter("")
	require.NoError(t, err)
	assert.False(t, f.Match("anything"))
}

func TestIgnoreFilterDedupesClauses(t *testing.T) {
	f, err := NewIgnoreFilter("*.pyc; *.pyc ;*.pyc")
	require.NoError(t, err)
	assert.True(t, f.Match("x.pyc"))
}

func TestIgnoreFilterBadPattern(t *testing.T) {
	_, err := NewIgnoreFilter("a[bc")
	require.Error(t, err)

	var repoErr *Error
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, StatusBadPattern, repoErr.Status)
}
