package fieldtype

import "ssw-trace-core/internal/clockclass"

// Compare performs a recursive deep equality check, used by trace
// deduplication to decide whether two independently decoded stream
// classes describe the same layout.
func (ft *FieldType) Compare(other *FieldType) bool {
	if ft == nil || other == nil {
		return ft == other
	}
	if ft.Kind != other.Kind || ft.Alignment != other.Alignment || ft.ByteOrder != other.ByteOrder {
		return false
	}

	switch ft.Kind {
	case KindInteger:
		return ft.IntSize == other.IntSize && ft.IntSigned == other.IntSigned &&
			ft.IntBase == other.IntBase && ft.IntEncoding == other.IntEncoding &&
			sameClockClass(ft.MappedClock, other.MappedClock)
	case KindFloat:
		return ft.ExpBits == other.ExpBits && ft.MantBits == other.MantBits
	case KindString:
		return true
	case KindEnum:
		if !ft.EnumContainer.Compare(other.EnumContainer) {
			return false
		}
		return sameMappings(ft.EnumMappings, other.EnumMappings)
	case KindStruct:
		if len(ft.StructFields) != len(other.StructFields) {
			return false
		}
		for i, f := range ft.StructFields {
			of := other.StructFields[i]
			if f.Name != of.Name || !f.Type.Compare(of.Type) {
				return false
			}
		}
		return true
	case KindVariant:
		if ft.VariantTagFieldName != other.VariantTagFieldName {
			return false
		}
		if !ft.VariantTagType.Compare(other.VariantTagType) {
			return false
		}
		if len(ft.VariantArms) != len(other.VariantArms) {
			return false
		}
		for i, a := range ft.VariantArms {
			oa := other.VariantArms[i]
			if a.Label != oa.Label || !a.Type.Compare(oa.Type) {
				return false
			}
		}
		return true
	case KindArray:
		return ft.ArrayLength == other.ArrayLength && ft.ArrayElement.Compare(other.ArrayElement)
	case KindSequence:
		return ft.SeqLengthFieldName == other.SeqLengthFieldName && ft.SeqElement.Compare(other.SeqElement)
	default:
		return false
	}
}

func sameClockClass(a, b *clockclass.ClockClass) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Name == b.Name && a.FrequencyHz == b.FrequencyHz &&
		a.OffsetS == b.OffsetS && a.OffsetCycles == b.OffsetCycles && a.Origin == b.Origin
}

func sameMappings(a, b []EnumMapping) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Label != b[i].Label || len(a[i].Ranges) != len(b[i].Ranges) {
			return false
		}
		for j := range a[i].Ranges {
			if a[i].Ranges[j] != b[i].Ranges[j] {
				return false
			}
		}
	}
	return true
}
