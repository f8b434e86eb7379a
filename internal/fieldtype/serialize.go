package fieldtype

import (
	"fmt"
	"io"
	"strings"
)

// Serialize writes a TSDL-compatible textual rendering of ft to w,
// indented at the given nesting depth. It targets the CTF 1.8 subset
// understood by LTTng tooling; it does not attempt to reproduce every
// TSDL extension.
func (ft *FieldType) Serialize(w io.Writer, indent int) error {
	pad := strings.Repeat("\t", indent)
	switch ft.Kind {
	case KindInteger:
		_, err := fmt.Fprintf(w, "%sinteger { size = %d; align = %d; signed = %t; byte_order = %s; base = %s; }",
			pad, ft.IntSize, ft.Alignment, ft.IntSigned, ft.ByteOrder, baseName(ft.IntBase))
		return err
	case KindFloat:
		_, err := fmt.Fprintf(w, "%sfloating_point { exp_dig = %d; mant_dig = %d; align = %d; byte_order = %s; }",
			pad, ft.ExpBits, ft.MantBits, ft.Alignment, ft.ByteOrder)
		return err
	case KindString:
		_, err := fmt.Fprintf(w, "%sstring { encoding = UTF8; }", pad)
		return err
	case KindEnum:
		if _, err := fmt.Fprintf(w, "%senum : ", pad); err != nil {
			return err
		}
		if err := ft.EnumContainer.Serialize(w, 0); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, " {\n"); err != nil {
			return err
		}
		for i, m := range ft.EnumMappings {
			if _, err := fmt.Fprintf(w, "%s\t%q = %s", pad, m.Label, rangesToTSDL(m.Ranges)); err != nil {
				return err
			}
			if i < len(ft.EnumMappings)-1 {
				if _, err := fmt.Fprintf(w, ","); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "\n"); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "%s}", pad)
		return err
	case KindStruct:
		if _, err := fmt.Fprintf(w, "%sstruct {\n", pad); err != nil {
			return err
		}
		for _, f := range ft.StructFields {
			if err := f.Type.Serialize(w, indent+1); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, " %s;\n", f.Name); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "%s} align(%d)", pad, ft.Alignment)
		return err
	case KindVariant:
		if _, err := fmt.Fprintf(w, "%svariant <%s> {\n", pad, ft.VariantTagFieldName); err != nil {
			return err
		}
		for _, a := range ft.VariantArms {
			if err := a.Type.Serialize(w, indent+1); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, " %s;\n", a.Label); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "%s}", pad)
		return err
	case KindArray:
		if err := ft.ArrayElement.Serialize(w, indent); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "[%d]", ft.ArrayLength)
		return err
	case KindSequence:
		if err := ft.SeqElement.Serialize(w, indent); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "[%s]", ft.SeqLengthFieldName)
		return err
	default:
		return fmt.Errorf("fieldtype: serialize: unknown kind %v", ft.Kind)
	}
}

func baseName(b IntBase) string {
	switch b {
	case BaseBinary:
		return "2"
	case BaseOctal:
		return "8"
	case BaseHexadecimal:
		return "16"
	default:
		return "10"
	}
}

func rangesToTSDL(ranges []Range) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		if r.Signed {
			if r.Lo == r.Hi {
				parts[i] = fmt.Sprintf("%d", r.Lo)
			} else {
				parts[i] = fmt.Sprintf("%d ... %d", r.Lo, r.Hi)
			}
			continue
		}
		if r.ULo == r.UHi {
			parts[i] = fmt.Sprintf("%d", r.ULo)
		} else {
			parts[i] = fmt.Sprintf("%d ... %d", r.ULo, r.UHi)
		}
	}
	return strings.Join(parts, ", ")
}
