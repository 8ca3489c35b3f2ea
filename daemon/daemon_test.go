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

package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestybox/resource-tuner/daemon"
	"github.com/nestybox/resource-tuner/domain"
)

const catalogueYAML = `
Resources:
  - ResType: "0"
    ResID: 1
    Name: "/sys/class/test/boost"
    HighThreshold: 1024
    LowThreshold: 0
    Permissions: ThirdParty
    Modes: [DisplayOn]
    Policy: HigherBetter
    ApplyType: Global
`

const targetYAML = `
TotalCoreCount: 4
Clusters:
  - Id: 0
    Type: little
    CoreCount: 4
`

const signalYAML = `
Signals:
  - SignalID: 7
    Name: boost
    DurationMs: 2000
    Resources:
      - ResType: "0"
        ResID: 1
        Value: 900
`

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestInitCatalogue_WiresLifecycleAndSignalAdapter(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sys/class/test/boost", []byte("100"), 0644))

	cfg := daemon.Config{
		CatalogueConfigPath: writeTemp(t, dir, "catalogue.yaml", catalogueYAML),
		TargetConfigPath:    writeTemp(t, dir, "target.yaml", targetYAML),
		SignalConfigPath:    writeTemp(t, dir, "signals.yaml", signalYAML),
		ApplyPoolDesired:    2,
		ApplyPoolMax:        4,
		TimerPoolDesired:    2,
		TimerPoolMax:        4,
		QueueDepth:          16,
	}

	d := daemon.New(cfg, fs)
	require.NoError(t, d.InitCatalogue())
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	require.NotNil(t, d.Lifecycle)
	require.NotNil(t, d.Signal)
	require.Equal(t, 4, d.Target.TotalCoreCount)

	handle, err := d.Signal.SignalTune(7, false, 1, 1, domain.PermThirdParty)
	require.NoError(t, err)
	assert.NotEqual(t, domain.InvalidHandle, handle)

	require.Eventually(t, func() bool {
		data, err := afero.ReadFile(fs, "/sys/class/test/boost")
		return err == nil && string(data) == "900"
	}, 200*time.Millisecond, 2*time.Millisecond)
}

func TestInitCatalogue_CustomCatalogueIsMerged(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sys/class/test/boost", []byte("100"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/sys/class/test/custom", []byte("5"), 0644))

	customYAML := `
Resources:
  - ResType: "0"
    ResID: 2
    Name: "/sys/class/test/custom"
    HighThreshold: 10
    LowThreshold: 0
`

	cfg := daemon.Config{
		CatalogueConfigPath:       writeTemp(t, dir, "catalogue.yaml", catalogueYAML),
		CustomCatalogueConfigPath: writeTemp(t, dir, "custom.yaml", customYAML),
		ApplyPoolDesired:          1,
		ApplyPoolMax:              2,
		TimerPoolDesired:          1,
		TimerPoolMax:              2,
		QueueDepth:                8,
	}

	d := daemon.New(cfg, fs)
	require.NoError(t, d.InitCatalogue())
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	custom, err := d.Registry.Lookup(domain.NewResourceId(0, 2, false))
	require.NoError(t, err)
	assert.Equal(t, int32(5), custom.DefaultValue)
}

func TestInitCatalogue_WiresExtensionCallbackRegisteredBeforeCatalogueLoad(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sys/class/test/boost", []byte("100"), 0644))

	cfg := daemon.Config{
		CatalogueConfigPath: writeTemp(t, dir, "catalogue.yaml", catalogueYAML),
		ApplyPoolDesired:    1,
		ApplyPoolMax:        2,
		TimerPoolDesired:    1,
		TimerPoolMax:        2,
		QueueDepth:          8,
	}

	d := daemon.New(cfg, fs)

	// The extension registration window is strictly before InitCatalogue,
	// i.e. before the target descriptor has ever been registered.
	id := domain.NewResourceId(0, 1, false)
	var applied int32
	require.NoError(t, d.Extension.RegisterApply(id, func(ctx domain.ApplyContext) error {
		applied = ctx.Value
		return nil
	}))

	require.NoError(t, d.InitCatalogue())
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	desc, err := d.Registry.Lookup(id)
	require.NoError(t, err)
	require.NotNil(t, desc.ApplyCb)

	r := domain.NewRequest(1, domain.KindTune, 200, domain.PriorityHigh, false, 100, 100,
		domain.PermThirdParty, []domain.Resource{{Id: id, Value: domain.OneValue(777)}}, 0)
	errs := d.Arbiter.Apply(r)
	assert.Empty(t, errs)
	assert.Equal(t, int32(777), applied)

	// The built-in sysfs writer must not have run -- the extension
	// callback took over applying this resource.
	data, err := afero.ReadFile(fs, "/sys/class/test/boost")
	require.NoError(t, err)
	assert.Equal(t, "100", string(data))
}

func TestShutdown_BeforeInitCatalogueIsNoOp(t *testing.T) {
	d := daemon.New(daemon.Config{}, afero.NewMemMapFs())
	assert.NoError(t, d.Shutdown(context.Background()))
}
