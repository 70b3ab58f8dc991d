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
	"os"
	"runtime"
	"strconv"

	"github.com/odeke-em/semalim"
)

// DefaultMaxProcs bounds the worker pool width when the environment
// override is absent or invalid.
var DefaultMaxProcs = runtime.NumCPU()

const maxProcsEnvKey = "ScriptRepoGoMaxProcs"

func maxActionConcurrency() int {
	v, err := strconv.Atoi(os.Getenv(maxProcsEnvKey))
	if err != nil || v < 1 {
		return DefaultMaxProcs
	}
	return v
}

// job adapts a plain id + closure pair to semalim.Job, mirroring the
// teacher's jobSt in misc.go.
type job struct {
	id string
	do func() (interface{}, error)
}

func (j job) Id() interface{}         { return j.id }
func (j job) Do() (interface{}, error) { return j.do() }

type jobResult struct {
	value interface{}
	err   error
}

// runJobs fans fn out over items through semalim's bounded worker
// pool, returning one jobResult per item in completion order.
func runJobs(items []string, concurrency int, fn func(string) (interface{}, error)) []jobResult {
	if len(items) == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	jobsChan := make(chan semalim.Job)
	go func() {
		defer close(jobsChan)
		for _, item := range items {
			item := item
			jobsChan <- job{id: item, do: func() (interface{}, error) { return fn(item) }}
		}
	}()

	results := make([]jobResult, 0, len(items))
	for res := range semalim.Run(jobsChan, uint64(concurrency)) {
		results = append(results, jobResult{value: res.Value(), err: res.Err()})
	}
	return results
}

// combineErrors folds a batch of per-entry failures into one error,
// the aggregation §7 requires from check4update and directory
// download without discarding any individual message.
func combineErrors(errs []error) error {
	return errors.Join(errs...)
}
