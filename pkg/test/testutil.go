// Copyright 2022 Praetorian Security, Inc.
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

// Package test runs probes against real SSH servers in Docker containers.
package test

import (
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/praetorian-inc/sshpubkey/pkg/probe"
	"github.com/stretchr/testify/require"
)

type Testcase struct {
	// Testcase description
	Description string

	// Target port for test
	Port int

	// Host key family requested from the server
	KeyType string

	// Function used to determine whether testcase succeeded or not
	Expected func(*probe.Result) bool

	// Docker containers to run
	RunConfig dockertest.RunOptions
}

var dockerPool *dockertest.Pool

// RunTest starts the container described by tc and probes it until the
// server answers. It skips when Docker is not reachable.
func RunTest(t *testing.T, tc Testcase) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if dockerPool == nil {
		pool, err := dockertest.NewPool("")
		if err != nil {
			t.Skipf("could not connect to docker: %s", err)
		}
		if err := pool.Client.Ping(); err != nil {
			t.Skipf("could not connect to docker: %s", err)
		}
		pool.MaxWait = 3 * time.Minute
		dockerPool = pool
	}

	resource, err := dockerPool.RunWithOptions(&tc.RunConfig)
	require.NoError(t, err, "could not start resource")
	defer dockerPool.Purge(resource) //nolint:errcheck

	targetAddr := resource.GetHostPort(fmt.Sprintf("%d/tcp", tc.Port))
	t.Logf("probing %s", targetAddr)

	config := probe.Config{KeyType: tc.KeyType, DefaultTimeout: 5 * time.Second}
	var result *probe.Result
	err = dockerPool.Retry(func() error {
		var probeErr error
		result, probeErr = probe.ProbeTarget(targetAddr, config)
		return probeErr
	})
	require.NoError(t, err, "failed to fetch host key from test container")
	require.True(t, tc.Expected(result), "failed testcase: %s", tc.Description)
}
