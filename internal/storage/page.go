package storage

// Page is one PageSize block of a segment file. The storage layer gives
// the bytes no structure; the blob store lays its chain header on top.
type Page struct {
	ID  uint32
	Buf []byte
}

func NewPage(id uint32, buf []byte) (*Page, error) {
	if len(buf) != PageSize {
		return nil, ErrWrongSize
	}
	return &Page{ID: id, Buf: buf}, nil
}

func (p *Page) PageID() uint32 { return p.ID }
