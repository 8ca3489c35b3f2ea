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

package registry

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/nestybox/resource-tuner/domain"
)

// RestoreBaseline replays the persisted-state file
// ("resource_original_values.txt") against the given sysfs, so the host
// returns to a known baseline after a crash. Parse errors on individual
// lines are logged and skipped; a missing file is not an error (first run).
func RestoreBaseline(fs afero.Fs, sysfsPath string, sysfs SysfsIface) error {
	f, err := fs.Open(sysfsPath)
	if err != nil {
		if ok, _ := afero.Exists(fs, sysfsPath); !ok {
			return nil
		}
		return fmt.Errorf("restore baseline: opening %s: %w", sysfsPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			logrus.Warnf("restore baseline: malformed line %d in %s, skipping", lineNo, sysfsPath)
			continue
		}

		path := parts[0]
		value, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			logrus.Warnf("restore baseline: invalid value on line %d in %s, skipping", lineNo, sysfsPath)
			continue
		}

		if err := sysfs.WriteInt(path, int32(value)); err != nil {
			logrus.Warnf("restore baseline: failed to write %s=%d: %v", path, value, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("restore baseline: scanning %s: %w", sysfsPath, err)
	}

	return nil
}

// PersistBaseline writes the current default values of all supported
// resources to sysfsPath, in the "path,value" newline-delimited format
// RestoreBaseline expects.
func PersistBaseline(fs afero.Fs, sysfsPath string, rs domain.RegistryIface) error {
	var b strings.Builder
	for _, d := range rs.AllDescriptors() {
		if !d.Supported || d.SysfsPath == "" {
			continue
		}
		fmt.Fprintf(&b, "%s,%d\n", d.SysfsPath, d.DefaultValue)
	}

	return afero.WriteFile(fs, sysfsPath, []byte(b.String()), 0644)
}
