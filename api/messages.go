// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package api

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Version of the native API implemented by this package.
const (
	VersionMajor = 1
	VersionMinor = 10
)

// empty is embedded by messages without fields.
type empty struct{}

func (empty) marshal(b []byte) []byte {
	return b
}

func (empty) unmarshal(b []byte) error {
	return walk(b, func(*field) error { return nil })
}

// HelloRequest is the first message sent by the client.
type HelloRequest struct {
	ClientInfo      string
	APIVersionMajor uint32
	APIVersionMinor uint32
}

func (m *HelloRequest) marshal(b []byte) []byte {
	b = appendString(b, 1, m.ClientInfo)
	b = appendUint(b, 2, uint64(m.APIVersionMajor))
	return appendUint(b, 3, uint64(m.APIVersionMinor))
}

func (m *HelloRequest) unmarshal(b []byte) error {
	return walk(b, func(f *field) error {
		switch {
		case f.num == 1 && f.typ == protowire.BytesType:
			m.ClientInfo = f.str()
		case f.num == 2 && f.typ == protowire.VarintType:
			m.APIVersionMajor = uint32(f.v)
		case f.num == 3 && f.typ == protowire.VarintType:
			m.APIVersionMinor = uint32(f.v)
		}
		return nil
	})
}

// HelloResponse is the node's answer to HelloRequest.
type HelloResponse struct {
	APIVersionMajor uint32
	APIVersionMinor uint32
	ServerInfo      string
	Name            string
}

func (m *HelloResponse) marshal(b []byte) []byte {
	b = appendUint(b, 1, uint64(m.APIVersionMajor))
	b = appendUint(b, 2, uint64(m.APIVersionMinor))
	b = appendString(b, 3, m.ServerInfo)
	return appendString(b, 4, m.Name)
}

func (m *HelloResponse) unmarshal(b []byte) error {
	return walk(b, func(f *field) error {
		switch {
		case f.num == 1 && f.typ == protowire.VarintType:
			m.APIVersionMajor = uint32(f.v)
		case f.num == 2 && f.typ == protowire.VarintType:
			m.APIVersionMinor = uint32(f.v)
		case f.num == 3 && f.typ == protowire.BytesType:
			m.ServerInfo = f.str()
		case f.num == 4 && f.typ == protowire.BytesType:
			m.Name = f.str()
		}
		return nil
	})
}

// ConnectRequest logs in with the API password.
type ConnectRequest struct {
	Password string
}

func (m *ConnectRequest) marshal(b []byte) []byte {
	return appendString(b, 1, m.Password)
}

func (m *ConnectRequest) unmarshal(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 && f.typ == protowire.BytesType {
			m.Password = f.str()
		}
		return nil
	})
}

// ConnectResponse is the node's answer to ConnectRequest.
type ConnectResponse struct {
	InvalidPassword bool
}

func (m *ConnectResponse) marshal(b []byte) []byte {
	return appendBool(b, 1, m.InvalidPassword)
}

func (m *ConnectResponse) unmarshal(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 && f.typ == protowire.VarintType {
			m.InvalidPassword = f.bool()
		}
		return nil
	})
}

// DisconnectRequest can be sent by either side.
type DisconnectRequest struct{ empty }

// DisconnectResponse acknowledges a DisconnectRequest.
type DisconnectResponse struct{ empty }

// PingRequest can be sent by either side.
type PingRequest struct{ empty }

// PingResponse acknowledges a PingRequest.
type PingResponse struct{ empty }

// DeviceInfoRequest asks for DeviceInfoResponse.
type DeviceInfoRequest struct{ empty }

// DeviceInfoResponse describes the node.
type DeviceInfoResponse struct {
	UsesPassword    bool
	Name            string
	MacAddress      string
	EsphomeVersion  string
	CompilationTime string
	Model           string
	HasDeepSleep    bool
	ProjectName     string
	ProjectVersion  string
	Manufacturer    string
	FriendlyName    string
}

func (m *DeviceInfoResponse) marshal(b []byte) []byte {
	b = appendBool(b, 1, m.UsesPassword)
	b = appendString(b, 2, m.Name)
	b = appendString(b, 3, m.MacAddress)
	b = appendString(b, 4, m.EsphomeVersion)
	b = appendString(b, 5, m.CompilationTime)
	b = appendString(b, 6, m.Model)
	b = appendBool(b, 7, m.HasDeepSleep)
	b = appendString(b, 8, m.ProjectName)
	b = appendString(b, 9, m.ProjectVersion)
	b = appendString(b, 12, m.Manufacturer)
	return appendString(b, 13, m.FriendlyName)
}

func (m *DeviceInfoResponse) unmarshal(b []byte) error {
	return walk(b, func(f *field) error {
		if f.typ == protowire.VarintType {
			switch f.num {
			case 1:
				m.UsesPassword = f.bool()
			case 7:
				m.HasDeepSleep = f.bool()
			}
			return nil
		}
		if f.typ != protowire.BytesType {
			return nil
		}
		switch f.num {
		case 2:
			m.Name = f.str()
		case 3:
			m.MacAddress = f.str()
		case 4:
			m.EsphomeVersion = f.str()
		case 5:
			m.CompilationTime = f.str()
		case 6:
			m.Model = f.str()
		case 8:
			m.ProjectName = f.str()
		case 9:
			m.ProjectVersion = f.str()
		case 12:
			m.Manufacturer = f.str()
		case 13:
			m.FriendlyName = f.str()
		}
		return nil
	})
}

// ListEntitiesRequest asks the node to send one message per entity, followed
// by ListEntitiesDoneResponse.
type ListEntitiesRequest struct{ empty }

// ListEntitiesDoneResponse terminates the entity list.
type ListEntitiesDoneResponse struct{ empty }

// SubscribeStatesRequest asks the node to stream state updates.
type SubscribeStatesRequest struct{ empty }

// GetTimeRequest is sent by the node to learn the current time.
type GetTimeRequest struct{ empty }

// GetTimeResponse answers GetTimeRequest.
type GetTimeResponse struct {
	EpochSeconds uint32
}

func (m *GetTimeResponse) marshal(b []byte) []byte {
	return appendFixed32(b, 1, m.EpochSeconds)
}

func (m *GetTimeResponse) unmarshal(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 && f.typ == protowire.Fixed32Type {
			m.EpochSeconds = uint32(f.v)
		}
		return nil
	})
}

// ButtonCommandRequest presses the button with the key.
type ButtonCommandRequest struct {
	Key uint32
}

func (m *ButtonCommandRequest) marshal(b []byte) []byte {
	return appendFixed32(b, 1, m.Key)
}

func (m *ButtonCommandRequest) unmarshal(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 && f.typ == protowire.Fixed32Type {
			m.Key = uint32(f.v)
		}
		return nil
	})
}

// ServiceArgType is the type of a user defined service argument.
type ServiceArgType uint32

// ServiceArg is one argument of a user defined service.
type ServiceArg struct {
	Name string
	Type ServiceArgType
}

// ServiceInfo is a user defined service, sent as ListEntitiesServicesResponse.
type ServiceInfo struct {
	Name string
	Key  uint32
	Args []ServiceArg
}

func (m *ServiceInfo) String() string {
	return fmt.Sprintf("service %q (key=%d, %d args)", m.Name, m.Key, len(m.Args))
}

func (m *ServiceInfo) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Name)
	b = appendFixed32(b, 2, m.Key)
	for _, a := range m.Args {
		var sub []byte
		sub = appendString(sub, 1, a.Name)
		sub = appendUint(sub, 2, uint64(a.Type))
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b
}

func (m *ServiceInfo) unmarshal(b []byte) error {
	return walk(b, func(f *field) error {
		switch {
		case f.num == 1 && f.typ == protowire.BytesType:
			m.Name = f.str()
		case f.num == 2 && f.typ == protowire.Fixed32Type:
			m.Key = uint32(f.v)
		case f.num == 3 && f.typ == protowire.BytesType:
			a := ServiceArg{}
			err := walk(f.b, func(g *field) error {
				switch {
				case g.num == 1 && g.typ == protowire.BytesType:
					a.Name = g.str()
				case g.num == 2 && g.typ == protowire.VarintType:
					a.Type = ServiceArgType(g.v)
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.Args = append(m.Args, a)
		}
		return nil
	})
}
