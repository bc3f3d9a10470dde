package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/novatile/internal/alias/bx"
	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
)

const (
	fragmentMagic   = "NTFR"
	fragmentVersion = 1
	// FragmentsDir is the pseudo directory fragment URIs live under.
	FragmentsDir = "__fragments"
)

// fragment is one immutable write. Dense fragments cover a rectangular
// region stored in row-major order; sparse fragments carry their
// coordinates as dimension columns.
type fragment struct {
	rec     fragmentRecord
	dense   bool
	cellNum uint64
	region  [][2]uint64 // dense only: inclusive ordinal bounds per dim
	cols    map[string]*column
	order   []string // column encode order
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptFragment, fmt.Sprintf(format, args...))
}

// fragmentName follows __<t_start>_<t_end>_<uuid>_<version>.
func fragmentName(ts uint64) string {
	return fmt.Sprintf("__%d_%d_%s_%d", ts, ts, uuid.NewString(), fragmentVersion)
}

func (f *fragment) addColumn(c *column) {
	if f.cols == nil {
		f.cols = make(map[string]*column)
	}
	f.cols[c.name] = c
	f.order = append(f.order, c.name)
}

// contains reports whether the dense region covers ords and returns the
// row-major cell index inside the region.
func (f *fragment) contains(ords []uint64) (uint64, bool) {
	var idx uint64
	for i, o := range ords {
		lo, hi := f.region[i][0], f.region[i][1]
		if o < lo || o > hi {
			return 0, false
		}
		idx = idx*(hi-lo+1) + (o - lo)
	}
	return idx, true
}

func (f *fragment) encode() []byte {
	b := make([]byte, 0, 64)
	b = append(b, fragmentMagic...)
	b = bx.AppendU32(b, fragmentVersion)
	b = bx.AppendU32(b, uint32(boolByte(f.dense)))
	b = bx.AppendU64(b, f.cellNum)
	b = bx.AppendU32(b, uint32(len(f.region)))
	for _, r := range f.region {
		b = bx.AppendU64(b, r[0])
		b = bx.AppendU64(b, r[1])
	}
	b = bx.AppendU32(b, uint32(len(f.order)))
	for _, name := range f.order {
		b = f.cols[name].encode(b)
	}
	return b
}

func decodeFragment(rec fragmentRecord, b []byte) (*fragment, error) {
	r := bx.NewReader(b)
	if string(r.Raw(len(fragmentMagic))) != fragmentMagic {
		return nil, corrupt("%s: bad magic", rec.Name)
	}
	if v := r.U32(); v != fragmentVersion {
		return nil, corrupt("%s: unsupported version %d", rec.Name, v)
	}
	f := &fragment{rec: rec, dense: r.U32() != 0, cellNum: r.U64()}
	nd := r.U32()
	if r.Err() != nil || uint64(r.Remaining()) < uint64(nd)*16 {
		return nil, corrupt("%s: truncated header", rec.Name)
	}
	f.region = make([][2]uint64, nd)
	for i := range f.region {
		f.region[i] = [2]uint64{r.U64(), r.U64()}
	}
	nc := r.U32()
	for range nc {
		c, err := decodeColumn(r, f.cellNum)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Name, err)
		}
		f.addColumn(c)
	}
	if err := r.Err(); err != nil {
		return nil, corrupt("%s: %v", rec.Name, err)
	}
	return f, nil
}

// encodeDomain packs per-dimension [lo, hi] values.
func encodeDomain(bounds [][2][]byte) []byte {
	var b []byte
	for _, r := range bounds {
		b = bx.AppendBytes(b, r[0])
		b = bx.AppendBytes(b, r[1])
	}
	return b
}

func decodeDomain(b []byte, ndim int) ([][2][]byte, error) {
	r := bx.NewReader(b)
	out := make([][2][]byte, ndim)
	for i := range out {
		out[i] = [2][]byte{r.Bytes(), r.Bytes()}
	}
	if err := r.Err(); err != nil {
		return nil, corrupt("non-empty domain: %v", err)
	}
	return out, nil
}

// regionDomain converts a dense ordinal region to typed bounds.
func regionDomain(s *schema.Schema, region [][2]uint64) [][2][]byte {
	out := make([][2][]byte, len(region))
	for i, dim := range s.Domain().Dimensions() {
		out[i] = [2][]byte{
			datatype.FromOrdinal(dim.Type(), region[i][0]),
			datatype.FromOrdinal(dim.Type(), region[i][1]),
		}
	}
	return out
}

// nowMillis is the fragment clock.
func nowMillis() uint64 { return uint64(time.Now().UnixMilli()) }
