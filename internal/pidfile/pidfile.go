//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package pidfile provides the single-instance daemon lifecycle that
// github.com/nestybox/sysbox-libs/utils's CheckPidFile/CreatePidFile/
// DestroyPidFile give sysbox-fs. That module is an internal nestybox
// library resolved through a sibling-directory replace directive and is
// not a fetchable dependency on its own, so the same contract is
// reimplemented here directly, using golang.org/x/sys/unix for the
// liveness probe the way state/containerDB.go and process/process.go use
// it for their own low-level syscalls (see DESIGN.md).
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Check verifies no other instance of name is running per the pid
// recorded at path. A stale file (process no longer alive) is not an
// error; a live process is.
func Check(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("pidfile: reading %s: %w", path, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil
	}

	if pid == os.Getpid() {
		return nil
	}

	if err := unix.Kill(pid, 0); err == nil {
		return fmt.Errorf("pidfile: %s is already running (pid %d)", name, pid)
	}

	return nil
}

// Create writes the current process's pid to path.
func Create(path string) error {
	data := []byte(strconv.Itoa(os.Getpid()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("pidfile: writing %s: %w", path, err)
	}
	return nil
}

// Destroy removes path; a missing file is not an error.
func Destroy(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: removing %s: %w", path, err)
	}
	return nil
}
