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

// Package rterrors defines the typed error kinds the arbiter and lifecycle
// manager surface to callers; ToStatus maps each one to a grpc status code
// the way a container-state service keeps one RPC error type per failure
// kind.
package rterrors

import (
	"errors"
	"fmt"

	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"
)

// Request-time errors: surfaced to the client as a rejected submission (no
// handle allocated).
var (
	ErrUnknownResource     = errors.New("unknown resource")
	ErrResourceUnsupported = errors.New("resource unsupported")
	ErrValueOutOfRange     = errors.New("value out of range")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrModeSuppressed      = errors.New("mode suppressed")
	ErrNoViableResources   = errors.New("no viable resources")
)

// Untune/retune-time errors.
var (
	ErrHandleNotFound     = errors.New("handle not found")
	ErrRetuneNotExtending = errors.New("retune does not extend duration")
)

// Queueing errors; caller may retry.
var (
	ErrQueueFull   = errors.New("queue full")
	ErrOverloaded  = errors.New("arbiter overloaded")
)

// Startup-time errors.
var (
	ErrRegistryFrozen    = errors.New("registry frozen")
	ErrMalformedCatalogue = errors.New("malformed catalogue")
	ErrHandleExhausted   = errors.New("handle space exhausted")
)

// ErrSysfsWriteFailed is logged, never surfaced to a caller.
var ErrSysfsWriteFailed = errors.New("sysfs write failed")

// ToStatus maps a rterrors sentinel to a grpc status error, the same way
// state/containerDB.go reports its own errors over the wire.
func ToStatus(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)

	switch {
	case errors.Is(err, ErrUnknownResource):
		return grpcStatus.Errorf(grpcCodes.NotFound, "%s: %v", msg, err)
	case errors.Is(err, ErrResourceUnsupported):
		return grpcStatus.Errorf(grpcCodes.FailedPrecondition, "%s: %v", msg, err)
	case errors.Is(err, ErrValueOutOfRange):
		return grpcStatus.Errorf(grpcCodes.OutOfRange, "%s: %v", msg, err)
	case errors.Is(err, ErrPermissionDenied):
		return grpcStatus.Errorf(grpcCodes.PermissionDenied, "%s: %v", msg, err)
	case errors.Is(err, ErrModeSuppressed):
		return grpcStatus.Errorf(grpcCodes.FailedPrecondition, "%s: %v", msg, err)
	case errors.Is(err, ErrNoViableResources):
		return grpcStatus.Errorf(grpcCodes.FailedPrecondition, "%s: %v", msg, err)
	case errors.Is(err, ErrHandleNotFound):
		return grpcStatus.Errorf(grpcCodes.NotFound, "%s: %v", msg, err)
	case errors.Is(err, ErrRetuneNotExtending):
		return grpcStatus.Errorf(grpcCodes.InvalidArgument, "%s: %v", msg, err)
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrOverloaded):
		return grpcStatus.Errorf(grpcCodes.ResourceExhausted, "%s: %v", msg, err)
	case errors.Is(err, ErrHandleExhausted):
		return grpcStatus.Errorf(grpcCodes.ResourceExhausted, "%s: %v", msg, err)
	default:
		return grpcStatus.Errorf(grpcCodes.Internal, "%s: %v", msg, err)
	}
}
