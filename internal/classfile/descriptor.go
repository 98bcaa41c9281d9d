package classfile

import "fmt"

// MethodType is a parsed method descriptor.
type MethodType struct {
	Params []string
	Return string
}

// ParseMethodDescriptor splits a descriptor such as "(I[Ljava/lang/String;)V"
// into parameter and return field descriptors.
func ParseMethodDescriptor(desc string) (MethodType, error) {
	var mt MethodType

	if len(desc) < 3 || desc[0] != '(' {
		return mt, fmt.Errorf("%w: method descriptor %q", ErrFormat, desc)
	}

	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescriptorLen(desc[i:])
		if err != nil {
			return mt, fmt.Errorf("%w: method descriptor %q", ErrFormat, desc)
		}

		mt.Params = append(mt.Params, desc[i:i+n])
		i += n
	}

	if i >= len(desc) {
		return mt, fmt.Errorf("%w: method descriptor %q", ErrFormat, desc)
	}

	mt.Return = desc[i+1:]
	if mt.Return != "V" {
		if n, err := fieldDescriptorLen(mt.Return); err != nil || n != len(mt.Return) {
			return mt, fmt.Errorf("%w: method descriptor %q", ErrFormat, desc)
		}
	}

	return mt, nil
}

// ArgSlots returns the number of local slots the parameters occupy, not
// counting the receiver.
func (mt MethodType) ArgSlots() int {
	n := 0

	for _, p := range mt.Params {
		n += SlotSize(p)
	}

	return n
}

// SlotSize returns the local/stack width of a field descriptor.
func SlotSize(fieldDesc string) int {
	switch fieldDesc {
	case "J", "D":
		return 2
	case "V", "":
		return 0
	default:
		return 1
	}
}

func fieldDescriptorLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}

	if i >= len(s) {
		return 0, ErrFormat
	}

	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		for j := i; j < len(s); j++ {
			if s[j] == ';' {
				return j + 1, nil
			}
		}
	}

	return 0, ErrFormat
}
