// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package api implements the messages of the ESPHome native API that are
// needed to find and press a button on a node.
//
// Messages are encoded as protobuf without generated code, using protowire.
// Only the fields that are used are decoded, the rest is skipped. The field
// numbers match api.proto as published at
// https://github.com/esphome/aioesphomeapi.
package api

import (
	"errors"
	"fmt"
)

// Message is one native API message.
type Message interface {
	marshal(b []byte) []byte
	unmarshal(b []byte) error
}

// ErrUnknownMessage is returned by Unmarshal for a message type that this
// package doesn't implement.
var ErrUnknownMessage = errors.New("api: unknown message type")

// Message type IDs, as defined by the "id" option in api.proto.
const (
	IDHelloRequest                 = 1
	IDHelloResponse                = 2
	IDConnectRequest               = 3
	IDConnectResponse              = 4
	IDDisconnectRequest            = 5
	IDDisconnectResponse           = 6
	IDPingRequest                  = 7
	IDPingResponse                 = 8
	IDDeviceInfoRequest            = 9
	IDDeviceInfoResponse           = 10
	IDListEntitiesRequest          = 11
	IDListEntitiesDoneResponse     = 19
	IDSubscribeStatesRequest       = 20
	IDGetTimeRequest               = 36
	IDGetTimeResponse              = 37
	IDListEntitiesServicesResponse = 41
	IDButtonCommandRequest         = 62
)

// ID returns the message type ID to use when sending msg.
//
// It returns 0 for an unknown message or for an EntityInfo with an unknown
// Kind.
func ID(msg Message) uint32 {
	switch m := msg.(type) {
	case *HelloRequest:
		return IDHelloRequest
	case *HelloResponse:
		return IDHelloResponse
	case *ConnectRequest:
		return IDConnectRequest
	case *ConnectResponse:
		return IDConnectResponse
	case *DisconnectRequest:
		return IDDisconnectRequest
	case *DisconnectResponse:
		return IDDisconnectResponse
	case *PingRequest:
		return IDPingRequest
	case *PingResponse:
		return IDPingResponse
	case *DeviceInfoRequest:
		return IDDeviceInfoRequest
	case *DeviceInfoResponse:
		return IDDeviceInfoResponse
	case *ListEntitiesRequest:
		return IDListEntitiesRequest
	case *EntityInfo:
		return m.Kind.id()
	case *ListEntitiesDoneResponse:
		return IDListEntitiesDoneResponse
	case *SubscribeStatesRequest:
		return IDSubscribeStatesRequest
	case *GetTimeRequest:
		return IDGetTimeRequest
	case *GetTimeResponse:
		return IDGetTimeResponse
	case *ServiceInfo:
		return IDListEntitiesServicesResponse
	case *ButtonCommandRequest:
		return IDButtonCommandRequest
	default:
		return 0
	}
}

// New returns an empty message for the type ID.
func New(id uint32) (Message, error) {
	switch id {
	case IDHelloRequest:
		return &HelloRequest{}, nil
	case IDHelloResponse:
		return &HelloResponse{}, nil
	case IDConnectRequest:
		return &ConnectRequest{}, nil
	case IDConnectResponse:
		return &ConnectResponse{}, nil
	case IDDisconnectRequest:
		return &DisconnectRequest{}, nil
	case IDDisconnectResponse:
		return &DisconnectResponse{}, nil
	case IDPingRequest:
		return &PingRequest{}, nil
	case IDPingResponse:
		return &PingResponse{}, nil
	case IDDeviceInfoRequest:
		return &DeviceInfoRequest{}, nil
	case IDDeviceInfoResponse:
		return &DeviceInfoResponse{}, nil
	case IDListEntitiesRequest:
		return &ListEntitiesRequest{}, nil
	case IDListEntitiesDoneResponse:
		return &ListEntitiesDoneResponse{}, nil
	case IDSubscribeStatesRequest:
		return &SubscribeStatesRequest{}, nil
	case IDGetTimeRequest:
		return &GetTimeRequest{}, nil
	case IDGetTimeResponse:
		return &GetTimeResponse{}, nil
	case IDListEntitiesServicesResponse:
		return &ServiceInfo{}, nil
	case IDButtonCommandRequest:
		return &ButtonCommandRequest{}, nil
	}
	if k, ok := kindByID[id]; ok {
		return &EntityInfo{Kind: k}, nil
	}
	return nil, fmt.Errorf("%w %d", ErrUnknownMessage, id)
}

// Marshal serializes msg and returns its type ID along the payload.
func Marshal(msg Message) (uint32, []byte, error) {
	id := ID(msg)
	if id == 0 {
		return 0, nil, fmt.Errorf("internal error: implement ID for type %T", msg)
	}
	return id, msg.marshal(nil), nil
}

// Unmarshal deserializes a message of type id.
func Unmarshal(id uint32, b []byte) (Message, error) {
	m, err := New(id)
	if err != nil {
		return nil, err
	}
	if err := m.unmarshal(b); err != nil {
		return nil, fmt.Errorf("api: decoding %T: %w", m, err)
	}
	return m, nil
}
