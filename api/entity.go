// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package api

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// EntityKind is the component type of an entity, e.g. "button".
type EntityKind string

// Entity kinds with a ListEntities*Response message known to this package.
const (
	BinarySensor EntityKind = "binary_sensor"
	Cover        EntityKind = "cover"
	Fan          EntityKind = "fan"
	Light        EntityKind = "light"
	Sensor       EntityKind = "sensor"
	Switch       EntityKind = "switch"
	TextSensor   EntityKind = "text_sensor"
	Camera       EntityKind = "camera"
	Climate      EntityKind = "climate"
	Number       EntityKind = "number"
	Select       EntityKind = "select"
	Siren        EntityKind = "siren"
	Lock         EntityKind = "lock"
	Button       EntityKind = "button"
	MediaPlayer  EntityKind = "media_player"
)

// kindByID maps ListEntities*Response IDs to the entity kind.
var kindByID = map[uint32]EntityKind{
	12: BinarySensor,
	13: Cover,
	14: Fan,
	15: Light,
	16: Sensor,
	17: Switch,
	18: TextSensor,
	43: Camera,
	46: Climate,
	49: Number,
	52: Select,
	55: Siren,
	58: Lock,
	61: Button,
	63: MediaPlayer,
}

func (k EntityKind) id() uint32 {
	for id, v := range kindByID {
		if v == k {
			return id
		}
	}
	return 0
}

// IsEntity returns true if id is a ListEntities*Response message.
func IsEntity(id uint32) bool {
	_, ok := kindByID[id]
	return ok
}

// EntityCategory is the entity_category enum.
type EntityCategory uint32

// Valid EntityCategory values.
const (
	CategoryNone       EntityCategory = 0
	CategoryConfig     EntityCategory = 1
	CategoryDiagnostic EntityCategory = 2
)

// EntityInfo is any ListEntities*Response.
//
// All these messages share the first four fields: object_id, key, name and
// unique_id. The rest is only decoded for buttons.
type EntityInfo struct {
	Kind     EntityKind
	ObjectID string
	Key      uint32
	Name     string
	UniqueID string

	// Button only.
	Icon              string
	DisabledByDefault bool
	EntityCategory    EntityCategory
	DeviceClass       string
}

func (e *EntityInfo) String() string {
	return fmt.Sprintf("%s %q (object_id=%s, key=%d)", e.Kind, e.Name, e.ObjectID, e.Key)
}

func (e *EntityInfo) marshal(b []byte) []byte {
	b = appendString(b, 1, e.ObjectID)
	b = appendFixed32(b, 2, e.Key)
	b = appendString(b, 3, e.Name)
	b = appendString(b, 4, e.UniqueID)
	if e.Kind != Button {
		return b
	}
	b = appendString(b, 5, e.Icon)
	b = appendBool(b, 6, e.DisabledByDefault)
	b = appendUint(b, 7, uint64(e.EntityCategory))
	return appendString(b, 8, e.DeviceClass)
}

func (e *EntityInfo) unmarshal(b []byte) error {
	return walk(b, func(f *field) error {
		switch {
		case f.num == 1 && f.typ == protowire.BytesType:
			e.ObjectID = f.str()
		case f.num == 2 && f.typ == protowire.Fixed32Type:
			e.Key = uint32(f.v)
		case f.num == 3 && f.typ == protowire.BytesType:
			e.Name = f.str()
		case f.num == 4 && f.typ == protowire.BytesType:
			e.UniqueID = f.str()
		case e.Kind != Button:
		case f.num == 5 && f.typ == protowire.BytesType:
			e.Icon = f.str()
		case f.num == 6 && f.typ == protowire.VarintType:
			e.DisabledByDefault = f.bool()
		case f.num == 7 && f.typ == protowire.VarintType:
			e.EntityCategory = EntityCategory(f.v)
		case f.num == 8 && f.typ == protowire.BytesType:
			e.DeviceClass = f.str()
		}
		return nil
	})
}
