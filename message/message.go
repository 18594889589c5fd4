package message

import (
	"hash/fnv"

	"github.com/pkg/errors"
)

// ID identifies a simulator variable. It is the FNV-1a hash of the
// variable's dotted name.
type ID uint64

type DataType uint8

const (
	TypeDouble   DataType = 1
	TypeVector2d DataType = 2
	TypeVector3d DataType = 3
	TypeString   DataType = 4
	TypeString8  DataType = 5
)

var ErrNotString = errors.New("message payload is not a string")

func (t DataType) String() string {
	switch t {
	case TypeDouble:
		return "double"
	case TypeVector2d:
		return "vector2d"
	case TypeVector3d:
		return "vector3d"
	case TypeString:
		return "string"
	case TypeString8:
		return "string8"
	}
	return "unknown"
}

func (t DataType) valid() bool {
	return t >= TypeDouble && t <= TypeString8
}

// IsString reports whether t is one of the string-like payload kinds.
func (t DataType) IsString() bool {
	return t == TypeString || t == TypeString8
}

type Vector2 struct {
	X, Y float64
}

type Vector3 struct {
	X, Y, Z float64
}

// Message is a decoded (identifier, typed payload) pair.
type Message struct {
	ID   ID
	Type DataType

	v   [3]float64
	str string
}

func NewID(name string) ID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return ID(h.Sum64())
}

func Double(id ID, v float64) Message {
	return Message{ID: id, Type: TypeDouble, v: [3]float64{v}}
}

func Vec2(id ID, v Vector2) Message {
	return Message{ID: id, Type: TypeVector2d, v: [3]float64{v.X, v.Y}}
}

func Vec3(id ID, v Vector3) Message {
	return Message{ID: id, Type: TypeVector3d, v: [3]float64{v.X, v.Y, v.Z}}
}

func String(id ID, s string) Message {
	return Message{ID: id, Type: TypeString, str: s}
}

func String8(id ID, s string) Message {
	return Message{ID: id, Type: TypeString8, str: s}
}

// Double returns the first payload component. Vector payloads yield their X
// component and string payloads yield 0.
func (m Message) Double() float64 {
	return m.v[0]
}

func (m Message) Vector2() Vector2 {
	return Vector2{X: m.v[0], Y: m.v[1]}
}

func (m Message) Vector3() Vector3 {
	return Vector3{X: m.v[0], Y: m.v[1], Z: m.v[2]}
}

// Text returns the payload of a string-like message.
func (m Message) Text() (string, error) {
	if !m.Type.IsString() {
		return "", errors.Wrapf(ErrNotString, "%s has type %s", Name(m.ID), m.Type)
	}
	return m.str, nil
}
