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

// Package wire implements pure frame decode/encode; the accept loop and
// socket handling stay an external collaborator. RequestKind dispatch is
// grounded on ipc/apis.go's CallbacksMap idiom, adapted from a gRPC method
// name to a wire-format request-kind byte.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nestybox/resource-tuner/domain"
)

// RequestKind is the second byte of every frame.
type RequestKind byte

const (
	KindTune         RequestKind = 1
	KindRetune       RequestKind = 2
	KindUntune       RequestKind = 3
	KindSignalTune   RequestKind = 4
	KindSignalUntune RequestKind = 5
	KindGetProp      RequestKind = 6
	KindSetProp      RequestKind = 7
)

const (
	priorityBit   = 1 << 0
	backgroundBit = 1 << 8
)

// Header is the common 2-byte prefix of every frame.
type Header struct {
	ModuleId byte
	Kind     RequestKind
}

// TuneFrame is REQ_RESOURCE_TUNE's payload: i64 duration_ms, i32
// properties, i32 num_resources, Resource[num_resources].
type TuneFrame struct {
	DurationMs int64
	Priority   domain.Priority
	Background bool
	Resources  []domain.Resource
}

type RetuneFrame struct {
	Handle        uint64
	NewDurationMs int64
}

type UntuneFrame struct {
	Handle uint64
}

type SignalTuneFrame struct {
	SignalId   int32
	Background bool
}

type SignalUntuneFrame struct {
	Handle uint64
}

// DecodeHeader reads the 1-byte module id and 1-byte request kind that
// prefix every frame.
func DecodeHeader(r *bytes.Reader) (Header, error) {
	moduleId, err := r.ReadByte()
	if err != nil {
		return Header{}, fmt.Errorf("wire: reading module id: %w", err)
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return Header{}, fmt.Errorf("wire: reading request kind: %w", err)
	}
	return Header{ModuleId: moduleId, Kind: RequestKind(kindByte)}, nil
}

// DecodeTuneFrame parses a tune payload immediately following the header.
func DecodeTuneFrame(r *bytes.Reader) (*TuneFrame, error) {
	var durationMs int64
	if err := binary.Read(r, binary.BigEndian, &durationMs); err != nil {
		return nil, fmt.Errorf("wire: reading duration_ms: %w", err)
	}

	var properties int32
	if err := binary.Read(r, binary.BigEndian, &properties); err != nil {
		return nil, fmt.Errorf("wire: reading properties: %w", err)
	}

	var numResources int32
	if err := binary.Read(r, binary.BigEndian, &numResources); err != nil {
		return nil, fmt.Errorf("wire: reading num_resources: %w", err)
	}
	if numResources < 0 {
		return nil, fmt.Errorf("wire: negative num_resources %d", numResources)
	}

	resources := make([]domain.Resource, 0, numResources)
	for i := int32(0); i < numResources; i++ {
		res, err := decodeResource(r)
		if err != nil {
			return nil, fmt.Errorf("wire: resource %d: %w", i, err)
		}
		resources = append(resources, res)
	}

	priority := domain.PriorityLow
	if properties&priorityBit != 0 {
		priority = domain.PriorityHigh
	}

	return &TuneFrame{
		DurationMs: durationMs,
		Priority:   priority,
		Background: properties&backgroundBit != 0,
		Resources:  resources,
	}, nil
}

// decodeResource reads one Resource: u32 id, i32 info, i32 optional_info,
// u32 num_values, i32[num_values] values. The multi-value wire shape is
// decoded in full even though the arbiter only arbitrates a resource's
// first value today; see DESIGN.md.
func decodeResource(r *bytes.Reader) (domain.Resource, error) {
	var id uint32
	if err := binary.Read(r, binary.BigEndian, &id); err != nil {
		return domain.Resource{}, fmt.Errorf("reading id: %w", err)
	}

	var info, optionalInfo int32
	if err := binary.Read(r, binary.BigEndian, &info); err != nil {
		return domain.Resource{}, fmt.Errorf("reading info: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &optionalInfo); err != nil {
		return domain.Resource{}, fmt.Errorf("reading optional_info: %w", err)
	}

	var numValues uint32
	if err := binary.Read(r, binary.BigEndian, &numValues); err != nil {
		return domain.Resource{}, fmt.Errorf("reading num_values: %w", err)
	}

	values := make([]int32, numValues)
	for i := range values {
		if err := binary.Read(r, binary.BigEndian, &values[i]); err != nil {
			return domain.Resource{}, fmt.Errorf("reading value %d: %w", i, err)
		}
	}

	return domain.Resource{
		Id:           domain.ResourceId(id),
		Info:         info,
		OptionalInfo: optionalInfo,
		Value:        domain.ManyValues(values),
	}, nil
}

func DecodeRetuneFrame(r *bytes.Reader) (*RetuneFrame, error) {
	var handle uint64
	if err := binary.Read(r, binary.BigEndian, &handle); err != nil {
		return nil, fmt.Errorf("wire: reading handle: %w", err)
	}
	var newDuration int64
	if err := binary.Read(r, binary.BigEndian, &newDuration); err != nil {
		return nil, fmt.Errorf("wire: reading new_duration_ms: %w", err)
	}
	return &RetuneFrame{Handle: handle, NewDurationMs: newDuration}, nil
}

func DecodeUntuneFrame(r *bytes.Reader) (*UntuneFrame, error) {
	var handle uint64
	if err := binary.Read(r, binary.BigEndian, &handle); err != nil {
		return nil, fmt.Errorf("wire: reading handle: %w", err)
	}
	return &UntuneFrame{Handle: handle}, nil
}

func DecodeSignalTuneFrame(r *bytes.Reader) (*SignalTuneFrame, error) {
	var signalId int32
	if err := binary.Read(r, binary.BigEndian, &signalId); err != nil {
		return nil, fmt.Errorf("wire: reading signal_id: %w", err)
	}
	var properties int32
	if err := binary.Read(r, binary.BigEndian, &properties); err != nil {
		return nil, fmt.Errorf("wire: reading properties: %w", err)
	}
	return &SignalTuneFrame{SignalId: signalId, Background: properties&backgroundBit != 0}, nil
}

func DecodeSignalUntuneFrame(r *bytes.Reader) (*SignalUntuneFrame, error) {
	var handle uint64
	if err := binary.Read(r, binary.BigEndian, &handle); err != nil {
		return nil, fmt.Errorf("wire: reading handle: %w", err)
	}
	return &SignalUntuneFrame{Handle: handle}, nil
}

// EncodeHandleReply encodes the i64 handle the server writes back after a
// successful tune -- the only reply payload this wire format defines.
func EncodeHandleReply(handle uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, handle)
	return buf
}
