package typedstream

// Class identifies an archived Objective-C class by name and encoded version.
type Class struct {
	Name    string
	Version uint64
}

// ValueKind discriminates the payload of a Value.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueSignedInt
	ValueUnsignedInt
	ValueFloat
	ValueDouble
	ValueByte
	ValueBytes
	ValueClass
)

// Value is one primitive decoded from an archive. Exactly one field besides
// Kind is meaningful, selected by Kind.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Uint  uint64
	Float float64
	Byte  byte
	Bytes []byte
	Class Class
}

// ComponentKind discriminates the shape of a Component.
type ComponentKind int

const (
	// ComponentObject is a class instance with its field values in order of
	// appearance. Archives carry no field names, so position is meaning.
	ComponentObject ComponentKind = iota
	// ComponentData is a run of values not attached to a class, usually a
	// field of the enclosing object.
	ComponentData
	// ComponentClass is a class referenced as part of an inheritance chain
	// that carries no data of its own.
	ComponentClass
	// ComponentPlaceholder reserves an object-table slot while the owning
	// object's class chain and fields are still being read.
	ComponentPlaceholder
	// ComponentTypes records an embedded type list that was never replaced
	// by a decoded object.
	ComponentTypes
)

// Component is one decoded unit from a typedstream archive. Unrecognized
// classes still decode into ordinary Object components carrying the raw
// class name and field values.
type Component struct {
	Kind   ComponentKind
	Class  Class
	Values []Value
}

// AsString returns the string payload when the component is an NSString or
// NSMutableString instance.
func (c *Component) AsString() (string, bool) {
	if c.Kind != ComponentObject {
		return "", false
	}
	if c.Class.Name != "NSString" && c.Class.Name != "NSMutableString" {
		return "", false
	}
	if len(c.Values) == 0 || c.Values[0].Kind != ValueString {
		return "", false
	}
	return c.Values[0].Str, true
}

// AsInt returns the first numeric payload of an object such as an NSNumber.
func (c *Component) AsInt() (int64, bool) {
	if c.Kind != ComponentObject || len(c.Values) == 0 {
		return 0, false
	}
	switch v := c.Values[0]; v.Kind {
	case ValueSignedInt:
		return v.Int, true
	case ValueUnsignedInt:
		return int64(v.Uint), true
	case ValueByte:
		return int64(v.Byte), true
	}
	return 0, false
}

// FirstString returns the first string value anywhere in the component,
// regardless of class. NSURL instances store their URL this way.
func (c *Component) FirstString() (string, bool) {
	for _, v := range c.Values {
		if v.Kind == ValueString {
			return v.Str, true
		}
	}
	return "", false
}

type fieldKind int

const (
	fieldObject fieldKind = iota
	fieldUTF8String
	fieldEmbeddedData
	fieldSignedInt
	fieldUnsignedInt
	fieldFloat
	fieldDouble
	fieldClassName
	fieldArray
	fieldUnknown
)

// fieldType is one entry of a decoded type list. name is set for
// fieldClassName, size for fieldArray, raw for fieldUnknown.
type fieldType struct {
	kind fieldKind
	name string
	size int
	raw  byte
}

func fieldTypeFromByte(b byte) fieldType {
	switch b {
	case 0x40: // @
		return fieldType{kind: fieldObject}
	case 0x2B: // +
		return fieldType{kind: fieldUTF8String}
	case 0x2A: // *
		return fieldType{kind: fieldEmbeddedData}
	case 0x66: // f
		return fieldType{kind: fieldFloat}
	case 0x64: // d
		return fieldType{kind: fieldDouble}
	case 0x63, 0x69, 0x6C, 0x71, 0x73: // c i l q s
		return fieldType{kind: fieldSignedInt}
	case 0x43, 0x49, 0x4C, 0x51, 0x53: // C I L Q S
		return fieldType{kind: fieldUnsignedInt}
	default:
		return fieldType{kind: fieldUnknown, raw: b}
	}
}

// arrayFieldType parses a braced array type such as "[123c]" into a single
// array entry of the given length. Returns false when no digits follow the
// opening brace.
func arrayFieldType(raw []byte) ([]fieldType, bool) {
	size := 0
	digits := 0
	for _, b := range raw[1:] {
		if b < '0' || b > '9' {
			break
		}
		size = size*10 + int(b-'0')
		digits++
	}
	if digits == 0 {
		return nil, false
	}
	return []fieldType{{kind: fieldArray, size: size}}, true
}
