// Package fieldtype implements the CTF field-type tree: the kind-tagged
// description of how bytes in a packet decode into integers, floats,
// enums, strings and nested compound types.
package fieldtype

import (
	"fmt"

	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/clockclass"
)

// Kind is the closed set of field-type node kinds.
type Kind int

const (
	KindInteger Kind = iota
	KindFloat
	KindEnum
	KindString
	KindStruct
	KindVariant
	KindArray
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindEnum:
		return "enum"
	case KindString:
		return "string"
	case KindStruct:
		return "struct"
	case KindVariant:
		return "variant"
	case KindArray:
		return "array"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// ByteOrder is the wire byte order of an integer or float field.
type ByteOrder int

const (
	ByteOrderNative ByteOrder = iota
	ByteOrderLittleEndian
	ByteOrderBigEndian
	ByteOrderNetwork
)

func (b ByteOrder) String() string {
	switch b {
	case ByteOrderLittleEndian:
		return "le"
	case ByteOrderBigEndian:
		return "be"
	case ByteOrderNetwork:
		return "network"
	default:
		return "native"
	}
}

// IntBase is the preferred textual base for integer rendering.
type IntBase int

const (
	BaseDecimal IntBase = iota
	BaseBinary
	BaseOctal
	BaseHexadecimal
)

// Encoding tags whether an integer field additionally carries character
// data (used by CTF for byte-wide integer arrays acting as strings).
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingASCII
	EncodingUTF8
)

// CharBit is the alignment CTF mandates for string fields.
const CharBit = 8

// Range is one (possibly signed) bound pair in an enum mapping.
type Range struct {
	Signed   bool
	Lo, Hi   int64
	ULo, UHi uint64
}

func (r Range) overlaps(o Range) bool {
	if r.Signed != o.Signed {
		// Mixed signedness ranges never overlap meaningfully; the
		// container's own signedness determines which field is live.
		return false
	}
	if r.Signed {
		return r.Lo <= o.Hi && o.Lo <= r.Hi
	}
	return r.ULo <= o.UHi && o.ULo <= r.UHi
}

// EnumMapping is one ordered (label, ranges) pair owned by an enum FT.
type EnumMapping struct {
	Label  string
	Ranges []Range
}

// StructField is one ordered named field of a struct FT.
type StructField struct {
	Name string
	Type *FieldType
}

// VariantArm is one ordered labelled arm of a variant FT.
type VariantArm struct {
	Label string
	Type  *FieldType
}

// FieldType is a tree node in the CTF field-type model. Once frozen no
// field may be mutated; Freeze/Copy/Validate/Compare/Serialize below are
// the only supported operations on a frozen node.
type FieldType struct {
	ID        string
	Alignment uint
	ByteOrder ByteOrder
	Kind      Kind

	frozen bool
	valid  bool
	checked bool

	// integer
	IntSize     uint
	IntSigned   bool
	IntBase     IntBase
	IntEncoding Encoding
	MappedClock *clockclass.ClockClass

	// float
	ExpBits, MantBits uint

	// enum
	EnumContainer        *FieldType
	EnumMappings         []EnumMapping
	HasOverlappingRanges bool

	// struct
	StructFields []StructField

	// variant
	VariantTagFieldName string
	VariantTagType       *FieldType
	VariantArms          []VariantArm

	// array
	ArrayElement *FieldType
	ArrayLength  uint64

	// sequence
	SeqElement         *FieldType
	SeqLengthFieldName string
}

func (ft *FieldType) Frozen() bool { return ft.frozen }

// NewInteger builds an integer FT. size must be in [1,64].
func NewInteger(id string, size uint, signed bool, base IntBase, encoding Encoding) *FieldType {
	return &FieldType{
		ID:          id,
		Alignment:   1,
		Kind:        KindInteger,
		IntSize:     size,
		IntSigned:   signed,
		IntBase:     base,
		IntEncoding: encoding,
	}
}

// SetMappedClockClass attaches cc to an integer FT. Signed integers MUST
// NOT have a mapped clock class.
func (ft *FieldType) SetMappedClockClass(cc *clockclass.ClockClass) error {
	if ft.Kind != KindInteger {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "fieldtype", "set_mapped_clock_class",
			"mapped clock class only applies to integer field types")
	}
	if ft.IntSigned {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "fieldtype", "set_mapped_clock_class",
			"signed integers must not have a mapped clock class")
	}
	ft.MappedClock = cc
	return nil
}

// floatPairs are the three (exp_bits, mant_bits) combinations CTF allows.
var floatPairs = map[[2]uint]bool{
	{8, 24}:  true,
	{11, 53}: true,
	{15, 64}: true,
}

// NewFloat builds a float FT; expBits/mantBits must form one of the three
// allowed IEEE-754-derived pairs, otherwise Validate will reject it.
func NewFloat(id string, expBits, mantBits uint) *FieldType {
	return &FieldType{ID: id, Alignment: 1, Kind: KindFloat, ExpBits: expBits, MantBits: mantBits}
}

// NewString builds a string FT, whose alignment is always CharBit.
func NewString(id string) *FieldType {
	return &FieldType{ID: id, Alignment: CharBit, Kind: KindString}
}

// NewEnum builds an enum FT over container, which must itself be an
// integer FT.
func NewEnum(id string, container *FieldType) *FieldType {
	return &FieldType{ID: id, Alignment: 1, Kind: KindEnum, EnumContainer: container}
}

// AddMapping appends an ordered (label, ranges) mapping. Overlap between
// mappings is allowed; it is only tracked, not rejected.
func (ft *FieldType) AddMapping(label string, ranges ...Range) error {
	if ft.Kind != KindEnum {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "fieldtype", "add_mapping",
			"add_mapping called on non-enum field type")
	}
	if ft.frozen {
		return bterr.New(bterr.KindInvalidState, bterr.ActorUnknown, "fieldtype", "add_mapping",
			"field type is frozen")
	}
	ft.EnumMappings = append(ft.EnumMappings, EnumMapping{Label: label, Ranges: ranges})
	return nil
}

// NewStruct builds an empty struct FT; fields are appended with AddField.
func NewStruct(id string) *FieldType {
	return &FieldType{ID: id, Alignment: 1, Kind: KindStruct}
}

// NewVariant builds a variant FT. tagType must be an enum FT; its overlap
// state is checked by Validate, not here.
func NewVariant(id, tagFieldName string, tagType *FieldType) *FieldType {
	return &FieldType{ID: id, Alignment: 1, Kind: KindVariant, VariantTagFieldName: tagFieldName, VariantTagType: tagType}
}

// AddArm appends an ordered labelled arm; label must name a mapping of
// the variant's tag type, checked by Validate.
func (ft *FieldType) AddArm(label string, armType *FieldType) error {
	if ft.Kind != KindVariant {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "fieldtype", "add_arm",
			"add_arm called on non-variant field type")
	}
	if ft.frozen {
		return bterr.New(bterr.KindInvalidState, bterr.ActorUnknown, "fieldtype", "add_arm",
			"field type is frozen")
	}
	ft.VariantArms = append(ft.VariantArms, VariantArm{Label: label, Type: armType})
	return nil
}

// NewArray builds a fixed-length array FT. length must be positive.
func NewArray(id string, element *FieldType, length uint64) *FieldType {
	return &FieldType{ID: id, Alignment: 1, Kind: KindArray, ArrayElement: element, ArrayLength: length}
}

// NewSequence builds a variable-length sequence FT whose runtime length
// is read from a sibling field named lengthFieldName.
func NewSequence(id string, element *FieldType, lengthFieldName string) *FieldType {
	return &FieldType{ID: id, Alignment: 1, Kind: KindSequence, SeqElement: element, SeqLengthFieldName: lengthFieldName}
}

// isValidIdentifier enforces CTF identifier rules: a leading letter or
// underscore followed by letters, digits, underscores. A bare "_name"
// alias of an existing field name is rejected at AddField time as a
// synthesised duplicate.
func isValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if i > 0 && !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

// AddField appends an ordered named field to a struct FT. Field names
// must be unique and valid CTF identifiers; a synthesised "_name" alias
// of any existing field name is also rejected.
func (ft *FieldType) AddField(name string, fieldType *FieldType) error {
	if ft.Kind != KindStruct {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "fieldtype", "add_field",
			"add_field called on non-struct field type")
	}
	if ft.frozen {
		return bterr.New(bterr.KindInvalidState, bterr.ActorUnknown, "fieldtype", "add_field",
			"field type is frozen")
	}
	if !isValidIdentifier(name) {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "fieldtype", "add_field",
			fmt.Sprintf("%q is not a valid CTF identifier", name))
	}
	for _, existing := range ft.StructFields {
		if existing.Name == name || existing.Name == "_"+name || name == "_"+existing.Name {
			return bterr.New(bterr.KindAlreadyExists, bterr.ActorUnknown, "fieldtype", "add_field",
				fmt.Sprintf("field name %q collides with existing field %q", name, existing.Name))
		}
	}
	ft.StructFields = append(ft.StructFields, StructField{Name: name, Type: fieldType})
	return nil
}

// Freeze recursively marks ft and its children immutable. Calling Freeze
// twice is a no-op. Freezing an enum computes HasOverlappingRanges;
// freezing a compound type propagates alignment as the max of its
// children's alignments.
func (ft *FieldType) Freeze() {
	if ft.frozen {
		return
	}
	ft.frozen = true

	switch ft.Kind {
	case KindEnum:
		ft.EnumContainer.Freeze()
		ft.HasOverlappingRanges = enumHasOverlap(ft.EnumMappings)
		if ft.EnumContainer.Alignment > ft.Alignment {
			ft.Alignment = ft.EnumContainer.Alignment
		}
	case KindStruct:
		for _, f := range ft.StructFields {
			f.Type.Freeze()
			if f.Type.Alignment > ft.Alignment {
				ft.Alignment = f.Type.Alignment
			}
		}
	case KindVariant:
		ft.VariantTagType.Freeze()
		for _, a := range ft.VariantArms {
			a.Type.Freeze()
			if a.Type.Alignment > ft.Alignment {
				ft.Alignment = a.Type.Alignment
			}
		}
	case KindArray:
		ft.ArrayElement.Freeze()
		if ft.ArrayElement.Alignment > ft.Alignment {
			ft.Alignment = ft.ArrayElement.Alignment
		}
	case KindSequence:
		ft.SeqElement.Freeze()
		if ft.SeqElement.Alignment > ft.Alignment {
			ft.Alignment = ft.SeqElement.Alignment
		}
	}
}

// enumHasOverlap is O(n^2) over mappings, acceptable because it runs
// once at first freeze.
func enumHasOverlap(mappings []EnumMapping) bool {
	for i := 0; i < len(mappings); i++ {
		for j := i + 1; j < len(mappings); j++ {
			for _, ri := range mappings[i].Ranges {
				for _, rj := range mappings[j].Ranges {
					if ri.overlaps(rj) {
						return true
					}
				}
			}
		}
	}
	return false
}

// Copy returns a deep copy of ft. The copy always starts unfrozen,
// regardless of ft's state.
func (ft *FieldType) Copy() *FieldType {
	out := &FieldType{
		ID:          ft.ID,
		Alignment:   ft.Alignment,
		ByteOrder:   ft.ByteOrder,
		Kind:        ft.Kind,
		IntSize:     ft.IntSize,
		IntSigned:   ft.IntSigned,
		IntBase:     ft.IntBase,
		IntEncoding: ft.IntEncoding,
		MappedClock: ft.MappedClock,
		ExpBits:     ft.ExpBits,
		MantBits:    ft.MantBits,
		ArrayLength: ft.ArrayLength,
		SeqLengthFieldName: ft.SeqLengthFieldName,
		VariantTagFieldName: ft.VariantTagFieldName,
	}
	if ft.EnumContainer != nil {
		out.EnumContainer = ft.EnumContainer.Copy()
	}
	for _, m := range ft.EnumMappings {
		ranges := make([]Range, len(m.Ranges))
		copy(ranges, m.Ranges)
		out.EnumMappings = append(out.EnumMappings, EnumMapping{Label: m.Label, Ranges: ranges})
	}
	for _, f := range ft.StructFields {
		out.StructFields = append(out.StructFields, StructField{Name: f.Name, Type: f.Type.Copy()})
	}
	if ft.VariantTagType != nil {
		out.VariantTagType = ft.VariantTagType.Copy()
	}
	for _, a := range ft.VariantArms {
		out.VariantArms = append(out.VariantArms, VariantArm{Label: a.Label, Type: a.Type.Copy()})
	}
	if ft.ArrayElement != nil {
		out.ArrayElement = ft.ArrayElement.Copy()
	}
	if ft.SeqElement != nil {
		out.SeqElement = ft.SeqElement.Copy()
	}
	return out
}
