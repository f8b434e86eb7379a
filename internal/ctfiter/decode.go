package ctfiter

import (
	"encoding/binary"
	"fmt"
	"math"

	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/fieldtype"
	"ssw-trace-core/internal/value"
)

// cursor is a byte-level read position into a decode buffer. Field
// layouts in this pipeline are always byte-aligned; bit-packed integers
// narrower than a byte still consume a whole byte, trading some density
// for a decoder that doesn't need a bit-offset concept throughout.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode",
			fmt.Sprintf("short read: need %d bytes, have %d", n, c.remaining()))
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// scope accumulates field name -> decoded Value for the current struct
// being decoded, consulted by sibling sequence-length and variant-tag
// references.
type scope struct {
	parent *scope
	fields map[string]*value.Value
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, fields: make(map[string]*value.Value)}
}

func (s *scope) lookup(name string) (*value.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.fields[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func byteOrder(bo fieldtype.ByteOrder) binary.ByteOrder {
	if bo == fieldtype.ByteOrderLittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// decodeValue decodes one field-type instance at the cursor's current
// position, returning the resulting Value. sc receives named fields as
// they're decoded so later siblings can reference them.
func decodeValue(ft *fieldtype.FieldType, c *cursor, sc *scope) (*value.Value, error) {
	switch ft.Kind {
	case fieldtype.KindInteger:
		return decodeInteger(ft, c)
	case fieldtype.KindFloat:
		return decodeFloat(ft, c)
	case fieldtype.KindString:
		return decodeString(c)
	case fieldtype.KindEnum:
		return decodeEnum(ft, c)
	case fieldtype.KindStruct:
		return decodeStruct(ft, c, sc)
	case fieldtype.KindVariant:
		return decodeVariant(ft, c, sc)
	case fieldtype.KindArray:
		return decodeArray(ft, c, sc)
	case fieldtype.KindSequence:
		return decodeSequence(ft, c, sc)
	default:
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode",
			fmt.Sprintf("unknown field type kind %v", ft.Kind))
	}
}

func intByteWidth(size uint) int {
	switch {
	case size <= 8:
		return 1
	case size <= 16:
		return 2
	case size <= 32:
		return 4
	default:
		return 8
	}
}

func decodeInteger(ft *fieldtype.FieldType, c *cursor) (*value.Value, error) {
	width := intByteWidth(ft.IntSize)
	raw, err := c.take(width)
	if err != nil {
		return nil, err
	}
	order := byteOrder(ft.ByteOrder)
	var u64 uint64
	switch width {
	case 1:
		u64 = uint64(raw[0])
	case 2:
		u64 = uint64(order.Uint16(raw))
	case 4:
		u64 = uint64(order.Uint32(raw))
	default:
		u64 = order.Uint64(raw)
	}
	mask := uint64(1)<<ft.IntSize - 1
	if ft.IntSize == 64 {
		mask = ^uint64(0)
	}
	u64 &= mask

	if ft.IntSigned {
		signBit := uint64(1) << (ft.IntSize - 1)
		var s64 int64
		if u64&signBit != 0 {
			s64 = int64(u64 | ^mask)
		} else {
			s64 = int64(u64)
		}
		return value.S64(s64), nil
	}
	return value.U64(u64), nil
}

func decodeFloat(ft *fieldtype.FieldType, c *cursor) (*value.Value, error) {
	if ft.ExpBits == 11 && ft.MantBits == 53 {
		raw, err := c.take(8)
		if err != nil {
			return nil, err
		}
		bits := byteOrder(ft.ByteOrder).Uint64(raw)
		return value.F64(math.Float64frombits(bits)), nil
	}
	raw, err := c.take(4)
	if err != nil {
		return nil, err
	}
	bits := byteOrder(ft.ByteOrder).Uint32(raw)
	return value.F64(float64(math.Float32frombits(bits))), nil
}

func decodeString(c *cursor) (*value.Value, error) {
	start := c.pos
	for c.pos < len(c.buf) {
		if c.buf[c.pos] == 0 {
			s := string(c.buf[start:c.pos])
			c.pos++
			return value.String(s), nil
		}
		c.pos++
	}
	return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_string",
		"string not NUL-terminated within bounds")
}

func decodeEnum(ft *fieldtype.FieldType, c *cursor) (*value.Value, error) {
	return decodeInteger(ft.EnumContainer, c)
}

// enumLabel resolves the first mapping label whose range contains raw.
func enumLabel(ft *fieldtype.FieldType, raw *value.Value) (string, bool) {
	for _, m := range ft.EnumMappings {
		for _, r := range m.Ranges {
			if r.Signed && raw.Kind() == value.KindS64 {
				if raw.AsS64() >= r.Lo && raw.AsS64() <= r.Hi {
					return m.Label, true
				}
			}
			if !r.Signed && raw.Kind() == value.KindU64 {
				if raw.AsU64() >= r.ULo && raw.AsU64() <= r.UHi {
					return m.Label, true
				}
			}
		}
	}
	return "", false
}

func decodeStruct(ft *fieldtype.FieldType, c *cursor, parent *scope) (*value.Value, error) {
	sc := newScope(parent)
	out := value.Map()
	for _, f := range ft.StructFields {
		v, err := decodeValue(f.Type, c, sc)
		if err != nil {
			return nil, bterr.Wrap(err, bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_struct",
				fmt.Sprintf("field %q", f.Name))
		}
		sc.fields[f.Name] = v
		if err := out.Insert(f.Name, v); err != nil {
			return nil, bterr.Wrap(err, bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_struct", f.Name)
		}
	}
	return out, nil
}

func decodeVariant(ft *fieldtype.FieldType, c *cursor, sc *scope) (*value.Value, error) {
	tagVal, ok := sc.lookup(ft.VariantTagFieldName)
	if !ok {
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_variant",
			fmt.Sprintf("tag field %q not found in scope", ft.VariantTagFieldName))
	}
	label, ok := enumLabel(ft.VariantTagType, tagVal)
	if !ok {
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_variant",
			"variant tag value matched no mapping")
	}
	for _, a := range ft.VariantArms {
		if a.Label == label {
			return decodeValue(a.Type, c, sc)
		}
	}
	return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_variant",
		fmt.Sprintf("no arm for tag label %q", label))
}

func decodeArray(ft *fieldtype.FieldType, c *cursor, sc *scope) (*value.Value, error) {
	out := value.Array()
	for i := uint64(0); i < ft.ArrayLength; i++ {
		v, err := decodeValue(ft.ArrayElement, c, sc)
		if err != nil {
			return nil, err
		}
		out.Append(v)
	}
	return out, nil
}

func decodeSequence(ft *fieldtype.FieldType, c *cursor, sc *scope) (*value.Value, error) {
	lenVal, ok := sc.lookup(ft.SeqLengthFieldName)
	if !ok {
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_sequence",
			fmt.Sprintf("length field %q not found in scope", ft.SeqLengthFieldName))
	}
	var n uint64
	switch lenVal.Kind() {
	case value.KindU64:
		n = lenVal.AsU64()
	case value.KindS64:
		n = uint64(lenVal.AsS64())
	default:
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_sequence",
			"length field is not an integer")
	}
	out := value.Array()
	for i := uint64(0); i < n; i++ {
		v, err := decodeValue(ft.SeqElement, c, sc)
		if err != nil {
			return nil, err
		}
		out.Append(v)
	}
	return out, nil
}
