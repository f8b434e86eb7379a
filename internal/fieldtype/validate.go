package fieldtype

import (
	"fmt"

	"ssw-trace-core/internal/bterr"
)

// Validate checks ft and its descendants against the field-type
// invariants, returning the first offending node's error. Calling
// Validate again on an already-validated frozen node returns the same
// outcome as the first call without re-walking the tree.
func (ft *FieldType) Validate() error {
	if ft.frozen && ft.checked {
		if ft.valid {
			return nil
		}
		return bterr.New(bterr.KindInvalidState, bterr.ActorUnknown, "fieldtype", "validate",
			fmt.Sprintf("field type %q failed validation on a previous call", ft.ID))
	}

	err := ft.validateOnce()
	ft.checked = true
	ft.valid = err == nil
	return err
}

func (ft *FieldType) validateOnce() error {
	if ft.Alignment == 0 || (ft.Alignment&(ft.Alignment-1)) != 0 {
		return ft.invalid("alignment must be a power of two greater than zero")
	}

	switch ft.Kind {
	case KindInteger:
		if ft.IntSize < 1 || ft.IntSize > 64 {
			return ft.invalid("integer size must be in [1,64]")
		}
		if ft.IntSigned && ft.MappedClock != nil {
			return ft.invalid("signed integers must not have a mapped clock class")
		}
	case KindFloat:
		if !floatPairs[[2]uint{ft.ExpBits, ft.MantBits}] {
			return ft.invalid(fmt.Sprintf("unsupported float shape (%d,%d)", ft.ExpBits, ft.MantBits))
		}
	case KindString:
		if ft.Alignment != CharBit {
			return ft.invalid("string field types must have CHAR_BIT alignment")
		}
	case KindEnum:
		if ft.EnumContainer == nil || ft.EnumContainer.Kind != KindInteger {
			return ft.invalid("enum must own an integer container field type")
		}
		if err := ft.EnumContainer.Validate(); err != nil {
			return err
		}
	case KindStruct:
		seen := make(map[string]bool, len(ft.StructFields))
		for _, f := range ft.StructFields {
			if !isValidIdentifier(f.Name) {
				return ft.invalid(fmt.Sprintf("field name %q is not a valid CTF identifier", f.Name))
			}
			if seen[f.Name] {
				return ft.invalid(fmt.Sprintf("duplicate field name %q", f.Name))
			}
			seen[f.Name] = true
			if err := f.Type.Validate(); err != nil {
				return err
			}
		}
	case KindVariant:
		if ft.VariantTagType == nil || ft.VariantTagType.Kind != KindEnum {
			return ft.invalid("variant tag type must be an enum")
		}
		if err := ft.VariantTagType.Validate(); err != nil {
			return err
		}
		if ft.VariantTagType.frozen && ft.VariantTagType.HasOverlappingRanges {
			return ft.invalid("variant tag type must not have overlapping ranges at freeze time")
		}
		tagLabels := make(map[string]bool, len(ft.VariantTagType.EnumMappings))
		for _, m := range ft.VariantTagType.EnumMappings {
			tagLabels[m.Label] = true
		}
		for _, a := range ft.VariantArms {
			if !tagLabels[a.Label] {
				return ft.invalid(fmt.Sprintf("variant arm %q is not a mapping name of the tag type", a.Label))
			}
			if err := a.Type.Validate(); err != nil {
				return err
			}
		}
	case KindArray:
		if ft.ArrayLength == 0 {
			return ft.invalid("array length must be positive")
		}
		if ft.ArrayElement == nil {
			return ft.invalid("array must have an element field type")
		}
		if err := ft.ArrayElement.Validate(); err != nil {
			return err
		}
	case KindSequence:
		if ft.SeqLengthFieldName == "" {
			return ft.invalid("sequence length field name must be non-empty")
		}
		if ft.SeqElement == nil {
			return ft.invalid("sequence must have an element field type")
		}
		if err := ft.SeqElement.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (ft *FieldType) invalid(reason string) error {
	return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "fieldtype", "validate",
		fmt.Sprintf("field type %q: %s", ft.ID, reason))
}
