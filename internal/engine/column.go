package engine

import (
	"github.com/tuannm99/novatile/internal/alias/bx"
)

// column holds the cells of one field in a fragment or a pending write.
// Var columns keep start offsets; cell i spans [offsets[i], offsets[i+1]).
type column struct {
	name     string
	isVar    bool
	nullable bool
	width    uint64 // fixed cell width in bytes

	data     []byte
	offsets  []uint64
	validity []uint8
}

func newColumn(name string, isVar, nullable bool, width uint64) *column {
	return &column{name: name, isVar: isVar, nullable: nullable, width: width}
}

func (c *column) len() uint64 {
	if c.isVar {
		return uint64(len(c.offsets))
	}
	if c.width == 0 {
		return 0
	}
	return uint64(len(c.data)) / c.width
}

func (c *column) append(value []byte, valid bool) {
	if c.isVar {
		c.offsets = append(c.offsets, uint64(len(c.data)))
	}
	c.data = append(c.data, value...)
	if c.nullable {
		c.validity = append(c.validity, boolByte(valid))
	}
}

func (c *column) cell(i uint64) ([]byte, bool) {
	valid := !c.nullable || c.validity[i] != 0
	if !c.isVar {
		return c.data[i*c.width : (i+1)*c.width], valid
	}
	end := uint64(len(c.data))
	if i+1 < uint64(len(c.offsets)) {
		end = c.offsets[i+1]
	}
	return c.data[c.offsets[i]:end], valid
}

// permute returns a column whose cell k is cell perm[k] of c.
func (c *column) permute(perm []uint64) *column {
	out := newColumn(c.name, c.isVar, c.nullable, c.width)
	out.data = make([]byte, 0, len(c.data))
	if c.isVar {
		out.offsets = make([]uint64, 0, len(perm))
	}
	if c.nullable {
		out.validity = make([]uint8, 0, len(perm))
	}
	for _, src := range perm {
		v, ok := c.cell(src)
		out.append(v, ok)
	}
	return out
}

const (
	colVar      = 1
	colNullable = 2
)

func (c *column) encode(b []byte) []byte {
	var flags uint32
	if c.isVar {
		flags |= colVar
	}
	if c.nullable {
		flags |= colNullable
	}
	b = bx.AppendBytes(b, []byte(c.name))
	b = bx.AppendU32(b, flags)
	b = bx.AppendU64(b, c.width)
	b = bx.AppendBytes(b, c.data)
	if c.isVar {
		b = bx.AppendU64(b, uint64(len(c.offsets)))
		for _, o := range c.offsets {
			b = bx.AppendU64(b, o)
		}
	}
	if c.nullable {
		b = bx.AppendBytes(b, c.validity)
	}
	return b
}

func decodeColumn(r *bx.Reader, cellNum uint64) (*column, error) {
	name := string(r.Bytes())
	flags := r.U32()
	c := newColumn(name, flags&colVar != 0, flags&colNullable != 0, r.U64())
	c.data = r.Bytes()
	if c.isVar {
		n := r.U64()
		if n != cellNum || uint64(r.Remaining()) < n*8 {
			return nil, corrupt("column %q: %d offsets for %d cells", name, n, cellNum)
		}
		c.offsets = make([]uint64, n)
		for i := range c.offsets {
			c.offsets[i] = r.U64()
		}
	}
	if c.nullable {
		c.validity = r.Bytes()
	}
	if err := r.Err(); err != nil {
		return nil, corrupt("column %q: %v", name, err)
	}
	if c.len() != cellNum || (c.nullable && uint64(len(c.validity)) != cellNum) {
		return nil, corrupt("column %q holds %d cells, want %d", name, c.len(), cellNum)
	}
	for i, o := range c.offsets {
		if o > uint64(len(c.data)) || (i > 0 && o < c.offsets[i-1]) {
			return nil, corrupt("column %q: bad offset %d at cell %d", name, o, i)
		}
	}
	return c, nil
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
