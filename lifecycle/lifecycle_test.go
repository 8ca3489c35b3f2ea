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

package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nestybox/resource-tuner/arbiter"
	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/lifecycle"
	"github.com/nestybox/resource-tuner/mocks"
	"github.com/nestybox/resource-tuner/registry"
	"github.com/nestybox/resource-tuner/rterrors"
	"github.com/nestybox/resource-tuner/timer"
	"github.com/nestybox/resource-tuner/workerpool"
)

const testPath = "/sys/class/test/resource"

type fixture struct {
	lifecycle domain.LifecycleIface
	sysfs     registry.SysfsIface
	applyPool *workerpool.Pool
	timerPool *workerpool.Pool
}

func newFixture(t *testing.T, descriptors ...*domain.ResourceDescriptor) *fixture {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte("300"), 0644))
	sysfs := registry.NewAferoSysfs(fs)

	reg := registry.NewRegistryService(sysfs)
	for _, d := range descriptors {
		require.NoError(t, reg.RegisterDescriptor(d))
	}
	require.NoError(t, reg.Init(false))

	arb := arbiter.New(reg, sysfs, nil)
	applyPool := workerpool.New("apply", 4, 8, 32)
	timerPool := workerpool.New("timers", 6, 10, 32)
	timerSvc := timer.NewService(timerPool)

	t.Cleanup(func() {
		applyPool.Shutdown(context.Background())
		timerPool.Shutdown(context.Background())
	})

	return &fixture{
		lifecycle: lifecycle.New(reg, arb, applyPool, timerSvc),
		sysfs:     sysfs,
		applyPool: applyPool,
		timerPool: timerPool,
	}
}

func baseDescriptor() *domain.ResourceDescriptor {
	return &domain.ResourceDescriptor{
		Id:            domain.NewResourceId(0, 1, false),
		Name:          "test",
		SysfsPath:     testPath,
		Supported:     true,
		DefaultValue:  300,
		HighThreshold: 1024,
		LowThreshold:  0,
		Permissions:   domain.PermThirdParty,
		Modes:         domain.ModeSet(domain.ModeDisplayOn),
		Policy:        domain.PolicyHigherBetter,
		ApplyType:     domain.ApplyGlobal,
	}
}

func tuneRequest(id domain.ResourceId, value int32, durationMs int64, perm domain.Permission) *domain.Request {
	return domain.NewRequest(domain.InvalidHandle, domain.KindTune, durationMs, domain.PriorityHigh, false,
		100, 100, perm, []domain.Resource{{Id: id, Value: domain.OneValue(value)}}, time.Now().UnixMilli())
}

func TestSubmitTune_AppliesThenExpiresToDefault(t *testing.T) {
	d := baseDescriptor()
	f := newFixture(t, d)

	handle, err := f.lifecycle.SubmitTune(tuneRequest(d.Id, 750, 100, domain.PermThirdParty))
	require.NoError(t, err)
	assert.NotEqual(t, domain.InvalidHandle, handle)

	require.Eventually(t, func() bool {
		v, _ := f.sysfs.ReadInt(testPath)
		return v == 750
	}, 200*time.Millisecond, 2*time.Millisecond)

	require.Eventually(t, func() bool {
		v, _ := f.sysfs.ReadInt(testPath)
		return v == d.DefaultValue
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitTune_ZeroDurationRejected(t *testing.T) {
	d := baseDescriptor()
	f := newFixture(t, d)

	_, err := f.lifecycle.SubmitTune(tuneRequest(d.Id, 750, 0, domain.PermThirdParty))
	assert.Error(t, err)
}

func TestSubmitTune_OutOfRangeValueDropsResourceNoViable(t *testing.T) {
	d := baseDescriptor()
	f := newFixture(t, d)

	_, err := f.lifecycle.SubmitTune(tuneRequest(d.Id, 5000, 100, domain.PermThirdParty))
	assert.ErrorIs(t, err, rterrors.ErrNoViableResources)
}

func TestSubmitTune_SystemOnlyResourceRejectsThirdParty(t *testing.T) {
	d := baseDescriptor()
	d.Permissions = domain.PermSystem
	f := newFixture(t, d)

	_, err := f.lifecycle.SubmitTune(tuneRequest(d.Id, 750, 100, domain.PermThirdParty))
	assert.ErrorIs(t, err, rterrors.ErrPermissionDenied)
}

func TestSubmitTune_ModeSuppressedResourceDropsToNoViable(t *testing.T) {
	d := baseDescriptor()
	d.Modes = domain.ModeSet(domain.ModeDoze) // current mode defaults to DisplayOn only
	f := newFixture(t, d)

	_, err := f.lifecycle.SubmitTune(tuneRequest(d.Id, 750, 100, domain.PermThirdParty))
	assert.ErrorIs(t, err, rterrors.ErrNoViableResources)
}

func TestSubmitUntune_IsIdempotent(t *testing.T) {
	d := baseDescriptor()
	f := newFixture(t, d)

	handle, err := f.lifecycle.SubmitTune(tuneRequest(d.Id, 750, 5000, domain.PermThirdParty))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := f.sysfs.ReadInt(testPath)
		return v == 750
	}, 200*time.Millisecond, 2*time.Millisecond)

	require.NoError(t, f.lifecycle.SubmitUntune(handle))

	require.Eventually(t, func() bool {
		v, _ := f.sysfs.ReadInt(testPath)
		return v == d.DefaultValue
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, f.lifecycle.SubmitUntune(handle), "second untune for the same handle is a no-op")
}

func TestSubmitUntune_UnknownHandleIsNoOp(t *testing.T) {
	d := baseDescriptor()
	f := newFixture(t, d)
	assert.NoError(t, f.lifecycle.SubmitUntune(999))
}

func TestSubmitRetune_RejectsShrinkingDuration(t *testing.T) {
	d := baseDescriptor()
	f := newFixture(t, d)

	handle, err := f.lifecycle.SubmitTune(tuneRequest(d.Id, 750, 5000, domain.PermThirdParty))
	require.NoError(t, err)

	err = f.lifecycle.SubmitRetune(handle, 10)
	assert.ErrorIs(t, err, rterrors.ErrRetuneNotExtending)
}

func TestSubmitRetune_ExtendsDeadline(t *testing.T) {
	d := baseDescriptor()
	f := newFixture(t, d)

	handle, err := f.lifecycle.SubmitTune(tuneRequest(d.Id, 750, 60, domain.PermThirdParty))
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.SubmitRetune(handle, 5000))

	time.Sleep(120 * time.Millisecond)
	v, _ := f.sysfs.ReadInt(testPath)
	assert.Equal(t, int32(750), v, "retuned request should not have expired yet")
}

func TestSubmitRetune_UnknownHandleReturnsError(t *testing.T) {
	d := baseDescriptor()
	f := newFixture(t, d)

	err := f.lifecycle.SubmitRetune(999, 5000)
	assert.ErrorIs(t, err, rterrors.ErrHandleNotFound)
}

// TestSubmitTune_EnqueueFailureReturnsQueueFull exercises the saturated-pool
// path with a mocked WorkerPoolIface, since reliably saturating a real
// pool's queue is racy; it checks that SubmitTune surfaces ErrQueueFull and
// never creates an expiry timer for the rejected request.
func TestSubmitTune_EnqueueFailureReturnsQueueFull(t *testing.T) {
	d := baseDescriptor()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte("300"), 0644))
	sysfs := registry.NewAferoSysfs(fs)

	reg := registry.NewRegistryService(sysfs)
	require.NoError(t, reg.RegisterDescriptor(d))
	require.NoError(t, reg.Init(false))
	arb := arbiter.New(reg, sysfs, nil)

	pool := &mocks.WorkerPoolIface{}
	pool.On("Enqueue", mock.AnythingOfType("func()")).Return(rterrors.ErrQueueFull)

	timerSvc := &mocks.TimerServiceIface{}

	lc := lifecycle.New(reg, arb, pool, timerSvc)

	_, err := lc.SubmitTune(tuneRequest(d.Id, 750, 100, domain.PermThirdParty))
	assert.ErrorIs(t, err, rterrors.ErrQueueFull)

	timerSvc.AssertNotCalled(t, "NewTimer", mock.Anything, mock.Anything)
}
