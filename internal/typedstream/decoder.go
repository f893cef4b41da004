// Package typedstream decodes the Apple typedstream archive format that
// Messages uses to store rich message bodies (NSAttributedString and
// friends), plus the older streamtyped layout used by early databases.
//
// The format is a self-describing object archive: a flat sequence of
// entries, each a primitive value, a class declaration with its superclass
// chain, an object instance, or a back-reference to an earlier entry by its
// emission index. References are resolved through growable index-addressed
// tables, never pointers, so repeated/shared objects are a bounds-checked
// lookup.
//
// Logic referenced from the typedstream sources in Apple's libobjc
// (typedstream.h, archive.c).
package typedstream

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

const (
	// tagInt16 and tagInt32 prefix little-endian integers wider than a byte.
	tagInt16 = 0x81
	tagInt32 = 0x82
	// tagDecimal prefixes a 4- or 8-byte little-endian float.
	tagDecimal = 0x83
	// tagStart opens an object or type list.
	tagStart = 0x84
	// tagEmpty marks the end of a class inheritance chain or a nil object.
	tagEmpty = 0x85
	// tagEnd closes an object.
	tagEnd = 0x86
	// refTag is the smallest byte that encodes a table index; the index is
	// the byte minus the tag.
	refTag = 0x92
)

type decoder struct {
	data []byte
	pos  int

	// Type lists and decoded entries are stored in order of first
	// appearance; later occurrences arrive as references by index.
	types   [][]fieldType
	objects []Component

	// placeholder is the reserved object-table slot awaiting its class and
	// field data, or -1.
	placeholder int
}

// Decode parses a typedstream archive into its ordered components.
//
// Truncated trailing bytes where no further complete entry is parseable end
// the stream with whatever was decoded so far; a declared length that
// implies a read past the buffer end, an out-of-range back-reference, or a
// bad header fail with a *StreamError.
func Decode(data []byte) ([]Component, error) {
	d := &decoder{data: data, placeholder: -1}
	if err := d.header(); err != nil {
		return nil, err
	}

	var out []Component
	for d.pos < len(d.data) {
		if d.data[d.pos] == tagEnd {
			d.pos++
			continue
		}

		fts, ok, err := d.currentType(false)
		if errors.Is(err, errTruncated) {
			break
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		c, err := d.readValues(fts)
		if errors.Is(err, errTruncated) {
			break
		}
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

// header validates the streamtyped v4 preamble: version, signature, one
// skipped byte, system version, one skipped byte.
func (d *decoder) header() error {
	version, err := d.readUint()
	if err != nil {
		return d.fail("streamtyped header", ErrInvalidHeader)
	}
	signature, err := d.readString()
	if err != nil {
		return d.fail("streamtyped header", ErrInvalidHeader)
	}
	d.pos++
	system, err := d.readUint()
	if err != nil {
		return d.fail("streamtyped header", ErrInvalidHeader)
	}
	if version != 4 || signature != "streamtyped" || system != 232 {
		return d.fail("streamtyped header", ErrInvalidHeader)
	}
	d.pos++
	return nil
}

func (d *decoder) current() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, errTruncated
	}
	return d.data[d.pos], nil
}

func (d *decoder) next() (byte, error) {
	if d.pos+1 >= len(d.data) {
		return 0, errTruncated
	}
	return d.data[d.pos+1], nil
}

// readExact consumes n bytes declared by a length field; running past the
// buffer end here is corruption, not truncation.
func (d *decoder) readExact(n int) ([]byte, error) {
	if d.pos+n > len(d.data) {
		return nil, d.fail("declared length", ErrOutOfBounds)
	}
	raw := d.data[d.pos : d.pos+n]
	d.pos += n
	return raw, nil
}

// readUint reads an unsigned integer: 0x81 prefixes a little-endian u16,
// 0x82 a little-endian u32, anything else is the value itself.
func (d *decoder) readUint() (uint64, error) {
	b, err := d.current()
	if err != nil {
		return 0, err
	}
	switch b {
	case tagInt16:
		d.pos++
		raw, err := d.readExact(2)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(raw)), nil
	case tagInt32:
		d.pos++
		raw, err := d.readExact(4)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(raw)), nil
	default:
		d.pos++
		return uint64(b), nil
	}
}

// readInt reads a signed integer with the same width tags; a lone byte above
// the reference tag is skipped before the value.
func (d *decoder) readInt() (int64, error) {
	b, err := d.current()
	if err != nil {
		return 0, err
	}
	switch b {
	case tagInt16:
		d.pos++
		raw, err := d.readExact(2)
		if err != nil {
			return 0, err
		}
		return int64(int16(binary.LittleEndian.Uint16(raw))), nil
	case tagInt32:
		d.pos++
		raw, err := d.readExact(4)
		if err != nil {
			return 0, err
		}
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	default:
		if b > refTag {
			d.pos++
		}
		v, err := d.current()
		if err != nil {
			return 0, err
		}
		d.pos++
		return int64(int8(v)), nil
	}
}

func (d *decoder) readFloat() (float64, error) {
	b, err := d.current()
	if err != nil {
		return 0, err
	}
	switch b {
	case tagDecimal:
		d.pos++
		raw, err := d.readExact(4)
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw))), nil
	case tagInt16, tagInt32:
		v, err := d.readInt()
		return float64(v), err
	default:
		d.pos++
		v, err := d.readInt()
		return float64(v), err
	}
}

func (d *decoder) readDouble() (float64, error) {
	b, err := d.current()
	if err != nil {
		return 0, err
	}
	switch b {
	case tagDecimal:
		d.pos++
		raw, err := d.readExact(8)
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
	case tagInt16, tagInt32:
		v, err := d.readInt()
		return float64(v), err
	default:
		d.pos++
		v, err := d.readInt()
		return float64(v), err
	}
}

// readString reads a length-prefixed UTF-8 string.
func (d *decoder) readString() (string, error) {
	n, err := d.readUint()
	if err != nil {
		return "", err
	}
	raw, err := d.readExact(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", d.fail("utf-8 string", ErrNotUTF8)
	}
	return string(raw), nil
}

// readPointer reads a table index encoded as byte minus the reference tag.
func (d *decoder) readPointer() (int, error) {
	b, err := d.current()
	if err != nil {
		return 0, err
	}
	if b < refTag {
		return 0, d.fail("reference pointer", ErrInvalidPointer)
	}
	d.pos++
	return int(b - refTag), nil
}

// readType reads a length-prefixed type list.
func (d *decoder) readType() ([]fieldType, error) {
	n, err := d.readUint()
	if err != nil {
		return nil, err
	}
	raw, err := d.readExact(int(n))
	if err != nil {
		return nil, err
	}

	if len(raw) > 0 && raw[0] == '[' {
		fts, ok := arrayFieldType(raw)
		if !ok {
			return nil, d.fail("array length", ErrInvalidArray)
		}
		return fts, nil
	}

	fts := make([]fieldType, len(raw))
	for i, b := range raw {
		fts[i] = fieldTypeFromByte(b)
	}
	return fts, nil
}

type classResult struct {
	isRef bool
	index int
	chain []Component
}

// readClass reads a class declaration and its superclass chain, or a
// reference to an already-seen class.
func (d *decoder) readClass() (classResult, error) {
	b, err := d.current()
	if err != nil {
		return classResult{}, err
	}
	switch b {
	case tagStart:
		for {
			b, err := d.current()
			if err != nil {
				return classResult{}, err
			}
			if b != tagStart {
				break
			}
			d.pos++
		}

		n, err := d.readUint()
		if err != nil {
			return classResult{}, err
		}
		if n >= refTag {
			return classResult{isRef: true, index: int(n - refTag)}, nil
		}

		raw, err := d.readExact(int(n))
		if err != nil {
			return classResult{}, err
		}
		if !utf8.Valid(raw) {
			return classResult{}, d.fail("class name", ErrNotUTF8)
		}
		name := string(raw)

		version, err := d.readUint()
		if err != nil {
			return classResult{}, err
		}

		d.types = append(d.types, []fieldType{{kind: fieldClassName, name: name}})

		chain := []Component{{Kind: ComponentClass, Class: Class{Name: name, Version: version}}}
		parent, err := d.readClass()
		if err != nil {
			return classResult{}, err
		}
		if !parent.isRef {
			chain = append(chain, parent.chain...)
		}
		return classResult{chain: chain}, nil
	case tagEmpty:
		d.pos++
		return classResult{}, nil
	default:
		idx, err := d.readPointer()
		if err != nil {
			return classResult{}, err
		}
		return classResult{isRef: true, index: idx}, nil
	}
}

// readObject reads an object into the table and returns it, or returns an
// already-cached object for a back-reference.
func (d *decoder) readObject() (Component, bool, error) {
	b, err := d.current()
	if err != nil {
		return Component{}, false, err
	}
	switch b {
	case tagStart:
		res, err := d.readClass()
		if err != nil {
			return Component{}, false, err
		}
		if res.isRef {
			if res.index >= len(d.objects) {
				return Component{}, false, d.fail("object reference", ErrBadReference)
			}
			return d.objects[res.index], true, nil
		}
		d.objects = append(d.objects, res.chain...)
		return Component{}, false, nil
	case tagEmpty:
		d.pos++
		return Component{}, false, nil
	default:
		idx, err := d.readPointer()
		if err != nil {
			return Component{}, false, err
		}
		if idx >= len(d.objects) {
			return Component{}, false, d.fail("object reference", ErrBadReference)
		}
		return d.objects[idx], true, nil
	}
}

// readEmbedded decodes archivable data nested in a field marked with the
// embedded-data type.
func (d *decoder) readEmbedded() (*Component, error) {
	d.pos++ // the start tag
	fts, ok, err := d.currentType(true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return d.readValues(fts)
}

// currentType reads the type list for the next entry, either literally or by
// reference into the type table. ok is false at an object end marker.
func (d *decoder) currentType(embedded bool) ([]fieldType, bool, error) {
	b, err := d.current()
	if err != nil {
		return nil, false, err
	}
	switch b {
	case tagStart:
		d.pos++
		fts, err := d.readType()
		if err != nil {
			return nil, false, err
		}
		if embedded {
			// Embedded data markers occupy an object-table slot.
			d.objects = append(d.objects, Component{Kind: ComponentTypes})
		}
		d.types = append(d.types, fts)
		return fts, true, nil
	case tagEnd:
		return nil, false, nil
	default:
		// Collapse repeated identical type bytes, e.g. dictionary runs.
		for {
			cur, err := d.current()
			if err != nil {
				return nil, false, err
			}
			nxt, err := d.next()
			if err != nil {
				return nil, false, err
			}
			if cur != nxt {
				break
			}
			d.pos++
		}
		ref, err := d.readPointer()
		if err != nil {
			return nil, false, err
		}
		if ref >= len(d.types) {
			return nil, false, d.fail("type reference", ErrBadReference)
		}
		return d.types[ref], true, nil
	}
}

// readValues decodes the values described by a type list. Object-typed
// values reserve a placeholder slot so the object's table index precedes its
// class chain, then the slot is filled once the field data completes.
func (d *decoder) readValues(fts []fieldType) (*Component, error) {
	var out []Value
	isObj := false

	for _, ft := range fts {
		switch ft.kind {
		case fieldUTF8String:
			s, err := d.readString()
			if err != nil {
				return nil, err
			}
			out = append(out, Value{Kind: ValueString, Str: s})
		case fieldEmbeddedData:
			return d.readEmbedded()
		case fieldObject:
			isObj = true
			spot := len(d.objects)
			d.placeholder = spot
			d.objects = append(d.objects, Component{Kind: ComponentPlaceholder})

			obj, found, err := d.readObject()
			if err != nil {
				return nil, err
			}
			if found {
				switch obj.Kind {
				case ComponentObject:
					// A class that already carries data is a shared object:
					// reuse the class at the reserved slot and re-emit the
					// stored values.
					if len(obj.Values) > 0 {
						d.objects[spot] = Component{Kind: ComponentObject, Class: obj.Class}
					}
					out = append(out, obj.Values...)
				case ComponentClass:
					out = append(out, Value{Kind: ValueClass, Class: obj.Class})
				case ComponentData:
					out = append(out, obj.Values...)
				case ComponentPlaceholder, ComponentTypes:
					// Self-references and type markers carry nothing.
				}
			}
		case fieldSignedInt:
			v, err := d.readInt()
			if err != nil {
				return nil, err
			}
			out = append(out, Value{Kind: ValueSignedInt, Int: v})
		case fieldUnsignedInt:
			v, err := d.readUint()
			if err != nil {
				return nil, err
			}
			out = append(out, Value{Kind: ValueUnsignedInt, Uint: v})
		case fieldFloat:
			v, err := d.readFloat()
			if err != nil {
				return nil, err
			}
			out = append(out, Value{Kind: ValueFloat, Float: v})
		case fieldDouble:
			v, err := d.readDouble()
			if err != nil {
				return nil, err
			}
			out = append(out, Value{Kind: ValueDouble, Float: v})
		case fieldClassName:
			out = append(out, Value{Kind: ValueString, Str: ft.name})
		case fieldArray:
			raw, err := d.readExact(ft.size)
			if err != nil {
				return nil, err
			}
			out = append(out, Value{Kind: ValueBytes, Bytes: append([]byte(nil), raw...)})
		case fieldUnknown:
			out = append(out, Value{Kind: ValueByte, Byte: ft.raw})
		}
	}

	// Fill the reserved slot now that the field data is complete.
	if d.placeholder >= 0 && len(out) > 0 {
		spot := d.placeholder
		if last := out[len(out)-1]; last.Kind == ValueClass {
			// A bare class with no data yet; its fields arrive later.
			d.objects[spot] = Component{Kind: ComponentObject, Class: last.Class}
		} else if spot+1 < len(d.objects) && d.objects[spot+1].Kind == ComponentClass {
			// The slot after the placeholder holds the top of the class
			// chain read for this object.
			d.objects[spot] = Component{Kind: ComponentObject, Class: d.objects[spot+1].Class, Values: out}
			d.placeholder = -1
			c := d.objects[spot]
			return &c, nil
		} else if d.objects[spot].Kind == ComponentObject {
			// Data for a class seen earlier.
			d.objects[spot].Values = append(d.objects[spot].Values, out...)
			d.placeholder = -1
			c := d.objects[spot]
			return &c, nil
		} else {
			// Field data that belongs to no class.
			d.objects[spot] = Component{Kind: ComponentData, Values: out}
			d.placeholder = -1
			c := d.objects[spot]
			return &c, nil
		}
	}

	if len(out) > 0 && !isObj {
		return &Component{Kind: ComponentData, Values: out}, nil
	}
	return nil, nil
}
