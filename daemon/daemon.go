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

// Package daemon wires the resource-tuning service set together in a fixed
// order: registry construction, an extension registration window, then
// catalogue init, which builds the worker pools, timer service, arbiter,
// lifecycle manager, and signal adapter once the registry is frozen.
package daemon

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/nestybox/resource-tuner/arbiter"
	"github.com/nestybox/resource-tuner/config"
	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/extension"
	"github.com/nestybox/resource-tuner/internal/logfmt"
	"github.com/nestybox/resource-tuner/lifecycle"
	"github.com/nestybox/resource-tuner/registry"
	"github.com/nestybox/resource-tuner/signal"
	"github.com/nestybox/resource-tuner/timer"
	"github.com/nestybox/resource-tuner/workerpool"
)

// Config holds the startup knobs a host binary (cmd/resource-tunerd)
// collects from its CLI flags.
type Config struct {
	CatalogueConfigPath       string
	CustomCatalogueConfigPath string
	TargetConfigPath          string
	SignalConfigPath          string
	BaselineFilePath          string

	ApplyPoolDesired int
	ApplyPoolMax     int
	TimerPoolDesired int
	TimerPoolMax     int
	QueueDepth       int
}

// Daemon is the fully wired service set. Fields populated by InitCatalogue
// are nil until it returns successfully.
type Daemon struct {
	cfg   Config
	fs    afero.Fs
	sysfs registry.SysfsIface

	Registry  domain.RegistryIface
	Extension *extension.Service

	Target *config.TargetCatalogue

	Arbiter   domain.ArbiterIface
	Lifecycle domain.LifecycleIface
	Signal    *signal.Adapter

	applyPool *workerpool.Pool
	timerPool *workerpool.Pool
}

// New constructs the registry and the extension registration surface only.
// The caller must run its extension registration phase (RegisterApply,
// RegisterTear, RegisterConfig) against d.Extension before calling
// InitCatalogue, which freezes the registry.
func New(cfg Config, fs afero.Fs) *Daemon {
	sysfs := registry.NewAferoSysfs(fs)
	reg := registry.NewRegistryService(sysfs)

	return &Daemon{
		cfg:       cfg,
		fs:        fs,
		sysfs:     sysfs,
		Registry:  reg,
		Extension: extension.New(reg),
	}
}

// InitCatalogue loads the resource catalogue (and an optional custom
// overlay file, setting the registry's custom_file_present init flag),
// the target catalogue, and the signal mapping, registers descriptors,
// freezes the registry, restores/persists the baseline, and builds the
// arbiter, lifecycle manager, and signal adapter. Must run after the
// extension registration phase completes.
func (d *Daemon) InitCatalogue() error {
	descriptors, err := config.LoadCatalogue(d.cfg.CatalogueConfigPath)
	if err != nil {
		return fmt.Errorf("daemon: loading catalogue: %w", err)
	}

	customFilePresent := d.cfg.CustomCatalogueConfigPath != ""
	if customFilePresent {
		custom, err := config.LoadCatalogue(d.cfg.CustomCatalogueConfigPath)
		if err != nil {
			return fmt.Errorf("daemon: loading custom catalogue: %w", err)
		}
		descriptors = append(descriptors, custom...)
	}

	for _, desc := range descriptors {
		if err := d.Registry.RegisterDescriptor(desc); err != nil {
			logrus.Warnf("daemon: dropping resource %s at registration: %v", desc.Name, err)
		}
	}

	for _, id := range d.Extension.Drain() {
		logrus.Warnf("daemon: extension callback registered for unknown resource %v", logfmt.ResourceId(id))
	}

	if d.cfg.TargetConfigPath != "" {
		target, err := config.LoadTargetConfig(d.cfg.TargetConfigPath)
		if err != nil {
			return fmt.Errorf("daemon: loading target catalogue: %w", err)
		}
		d.Target = target
		logrus.Infof("daemon: target has %d logical cores across %d clusters",
			target.TotalCoreCount, len(target.Clusters))
	}

	if err := d.Registry.Init(customFilePresent); err != nil {
		return fmt.Errorf("daemon: initializing registry: %w", err)
	}

	if d.cfg.BaselineFilePath != "" {
		if err := registry.RestoreBaseline(d.fs, d.cfg.BaselineFilePath, d.sysfs); err != nil {
			logrus.Warnf("daemon: failed to restore persisted baseline: %v", err)
		}
		if err := registry.PersistBaseline(d.fs, d.cfg.BaselineFilePath, d.Registry); err != nil {
			logrus.Warnf("daemon: failed to persist baseline: %v", err)
		}
	}

	d.applyPool = workerpool.New("apply", d.cfg.ApplyPoolDesired, d.cfg.ApplyPoolMax, d.cfg.QueueDepth)
	d.timerPool = workerpool.New("timers", d.cfg.TimerPoolDesired, d.cfg.TimerPoolMax, d.cfg.QueueDepth)
	timerSvc := timer.NewService(d.timerPool)

	d.Arbiter = arbiter.New(d.Registry, d.sysfs, d.Target)
	d.Lifecycle = lifecycle.New(d.Registry, d.Arbiter, d.applyPool, timerSvc)

	if d.cfg.SignalConfigPath != "" {
		mappings, err := config.LoadSignalConfig(d.cfg.SignalConfigPath)
		if err != nil {
			return fmt.Errorf("daemon: loading signal config: %w", err)
		}
		d.Signal = signal.New(d.Lifecycle, mappings)
	}

	return nil
}

// Shutdown drains both worker pools. Safe to call even if InitCatalogue
// never completed (the pools are simply nil).
func (d *Daemon) Shutdown(ctx context.Context) error {
	var firstErr error
	if d.applyPool != nil {
		if err := d.applyPool.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if d.timerPool != nil {
		if err := d.timerPool.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
