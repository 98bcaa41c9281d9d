package classfile

import (
	"fmt"
	"math"
	"strconv"
)

// Tag identifies a constant pool entry type.
type Tag uint8

// Constant pool tags.
const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

// Constant is one constant pool entry. Which fields are meaningful depends on
// Tag: Utf8 holds the raw modified UTF-8 bytes, Value the bits of numeric
// constants, and A/B the referenced pool indices.
type Constant struct {
	Tag     Tag
	Utf8    string
	Value   uint64
	A, B    uint16
	RefKind uint8
}

// ConstantPool is an indexable class file constant pool. Index 0 and the slot
// following a long or double are unusable, as in the class file.
type ConstantPool struct {
	entries []Constant
	lookup  map[string]uint16
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: make([]Constant, 1)}
}

// Len returns the constant_pool_count value: the number of slots plus one.
func (p *ConstantPool) Len() int {
	return len(p.entries)
}

// Get returns the entry at index i.
func (p *ConstantPool) Get(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return Constant{}, fmt.Errorf("%w: constant pool index %d", ErrFormat, i)
	}

	return p.entries[i], nil
}

// Has reports whether the pool contains any entry with tag.
func (p *ConstantPool) Has(tag Tag) bool {
	for _, c := range p.entries {
		if c.Tag == tag {
			return true
		}
	}

	return false
}

func (p *ConstantPool) typed(i uint16, tags ...Tag) (Constant, error) {
	c, err := p.Get(i)
	if err != nil {
		return c, err
	}

	for _, t := range tags {
		if c.Tag == t {
			return c, nil
		}
	}

	return c, fmt.Errorf("%w: constant %d has tag %d, want %v", ErrFormat, i, c.Tag, tags)
}

// Utf8 resolves a CONSTANT_Utf8 entry.
func (p *ConstantPool) Utf8(i uint16) (string, error) {
	c, err := p.typed(i, TagUtf8)
	if err != nil {
		return "", err
	}

	return c.Utf8, nil
}

// ClassName resolves a CONSTANT_Class entry to its internal name.
func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, err := p.typed(i, TagClass)
	if err != nil {
		return "", err
	}

	return p.Utf8(c.A)
}

// NameAndType resolves a CONSTANT_NameAndType entry.
func (p *ConstantPool) NameAndType(i uint16) (name, descriptor string, err error) {
	c, err := p.typed(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}

	if name, err = p.Utf8(c.A); err != nil {
		return "", "", err
	}

	descriptor, err = p.Utf8(c.B)

	return name, descriptor, err
}

// Ref resolves a field, method or interface method reference.
func (p *ConstantPool) Ref(i uint16) (owner, name, descriptor string, err error) {
	c, err := p.typed(i, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return "", "", "", err
	}

	if owner, err = p.ClassName(c.A); err != nil {
		return "", "", "", err
	}

	name, descriptor, err = p.NameAndType(c.B)

	return owner, name, descriptor, err
}

// Format renders the entry at i the way listings print operands.
func (p *ConstantPool) Format(i uint16) string {
	c, err := p.Get(i)
	if err != nil {
		return "#" + strconv.Itoa(int(i))
	}

	switch c.Tag {
	case TagUtf8:
		return c.Utf8
	case TagInteger:
		return strconv.Itoa(int(int32(uint32(c.Value))))
	case TagFloat:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(c.Value))), 'g', -1, 32) + "f"
	case TagLong:
		return strconv.FormatInt(int64(c.Value), 10) + "L"
	case TagDouble:
		return strconv.FormatFloat(math.Float64frombits(c.Value), 'g', -1, 64) + "d"
	case TagClass, TagModule, TagPackage, TagMethodType:
		return p.Format(c.A)
	case TagString:
		return strconv.Quote(p.Format(c.A))
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		owner, name, desc, err := p.Ref(i)
		if err != nil {
			return "#" + strconv.Itoa(int(i))
		}

		return owner + "." + name + ":" + desc
	case TagNameAndType:
		name, desc, _ := p.NameAndType(i)
		return name + ":" + desc
	case TagMethodHandle:
		return "handle(" + strconv.Itoa(int(c.RefKind)) + "," + p.Format(c.A) + ")"
	case TagDynamic, TagInvokeDynamic:
		return "bsm#" + strconv.Itoa(int(c.A)) + ":" + p.Format(c.B)
	default:
		return "#" + strconv.Itoa(int(i))
	}
}

func (c Constant) key() string {
	switch c.Tag {
	case TagUtf8:
		return "u:" + c.Utf8
	case TagInteger, TagFloat, TagLong, TagDouble:
		return fmt.Sprintf("%d:%d", c.Tag, c.Value)
	default:
		return fmt.Sprintf("%d:%d:%d:%d", c.Tag, c.A, c.B, c.RefKind)
	}
}

func (p *ConstantPool) index() {
	if p.lookup != nil {
		return
	}

	p.lookup = make(map[string]uint16, len(p.entries))

	for i, c := range p.entries {
		if c.Tag == 0 {
			continue
		}

		if _, ok := p.lookup[c.key()]; !ok {
			p.lookup[c.key()] = uint16(i)
		}
	}
}

// add returns the index of c, appending it when the pool has no equal entry.
func (p *ConstantPool) add(c Constant) uint16 {
	p.index()

	if i, ok := p.lookup[c.key()]; ok {
		return i
	}

	i := uint16(len(p.entries))
	p.entries = append(p.entries, c)

	if c.Tag == TagLong || c.Tag == TagDouble {
		p.entries = append(p.entries, Constant{})
	}

	p.lookup[c.key()] = i

	return i
}

// AddUtf8 interns s.
func (p *ConstantPool) AddUtf8(s string) uint16 {
	return p.add(Constant{Tag: TagUtf8, Utf8: s})
}

// AddClass interns a class reference by internal name.
func (p *ConstantPool) AddClass(name string) uint16 {
	return p.add(Constant{Tag: TagClass, A: p.AddUtf8(name)})
}

// AddString interns a string literal.
func (p *ConstantPool) AddString(s string) uint16 {
	return p.add(Constant{Tag: TagString, A: p.AddUtf8(s)})
}

// AddInteger interns an int literal.
func (p *ConstantPool) AddInteger(v int32) uint16 {
	return p.add(Constant{Tag: TagInteger, Value: uint64(uint32(v))})
}

// AddNameAndType interns a name and descriptor pair.
func (p *ConstantPool) AddNameAndType(name, descriptor string) uint16 {
	return p.add(Constant{Tag: TagNameAndType, A: p.AddUtf8(name), B: p.AddUtf8(descriptor)})
}

// AddFieldref interns a field reference.
func (p *ConstantPool) AddFieldref(owner, name, descriptor string) uint16 {
	return p.add(Constant{Tag: TagFieldref, A: p.AddClass(owner), B: p.AddNameAndType(name, descriptor)})
}

// AddMethodref interns a class method reference.
func (p *ConstantPool) AddMethodref(owner, name, descriptor string) uint16 {
	return p.add(Constant{Tag: TagMethodref, A: p.AddClass(owner), B: p.AddNameAndType(name, descriptor)})
}

func readConstantPool(r *byteReader) (*ConstantPool, error) {
	count, err := r.readU16()
	if err != nil {
		return nil, err
	}

	p := &ConstantPool{entries: make([]Constant, count)}

	for i := 1; i < int(count); i++ {
		tag, err := r.readU8()
		if err != nil {
			return nil, err
		}

		c := Constant{Tag: Tag(tag)}

		switch c.Tag {
		case TagUtf8:
			n, err := r.readU16()
			if err != nil {
				return nil, err
			}

			b, err := r.readBytes(int(n))
			if err != nil {
				return nil, err
			}

			c.Utf8 = string(b)
		case TagInteger, TagFloat:
			v, err := r.readU32()
			if err != nil {
				return nil, err
			}

			c.Value = uint64(v)
		case TagLong, TagDouble:
			if c.Value, err = r.readU64(); err != nil {
				return nil, err
			}
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			if c.A, err = r.readU16(); err != nil {
				return nil, err
			}
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			if c.A, err = r.readU16(); err != nil {
				return nil, err
			}

			if c.B, err = r.readU16(); err != nil {
				return nil, err
			}
		case TagMethodHandle:
			if c.RefKind, err = r.readU8(); err != nil {
				return nil, err
			}

			if c.A, err = r.readU16(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unknown constant tag %d at index %d", ErrFormat, tag, i)
		}

		p.entries[i] = c

		// Long and double constants take two slots; the second is unusable.
		if c.Tag == TagLong || c.Tag == TagDouble {
			i++
		}
	}

	return p, nil
}

func (p *ConstantPool) write(w *byteWriter) {
	w.u16(uint16(len(p.entries)))

	for _, c := range p.entries[1:] {
		if c.Tag == 0 {
			continue
		}

		w.u8(uint8(c.Tag))

		switch c.Tag {
		case TagUtf8:
			w.u16(uint16(len(c.Utf8)))
			w.bytes([]byte(c.Utf8))
		case TagInteger, TagFloat:
			w.u32(uint32(c.Value))
		case TagLong, TagDouble:
			w.u64(c.Value)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u16(c.A)
		case TagMethodHandle:
			w.u8(c.RefKind)
			w.u16(c.A)
		default:
			w.u16(c.A)
			w.u16(c.B)
		}
	}
}
