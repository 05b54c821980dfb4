package fidx

import (
	"encoding/binary"
	"os"
)

// Reader provides random access to an open FIDX file: its header, its
// preview array, and arbitrary main-section rows by rank, for the
// sub-index range scan (§4.G) to binary-search without reading the
// whole file.
type Reader struct {
	f       *os.File
	header  Header
	preview [][]byte
	keySize int
	offSize int
}

// Open reads a FIDX file's header and preview block and returns a Reader
// positioned to serve random row reads.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File) (*Reader, error) {
	block := make([]byte, blockSize)
	if _, err := f.ReadAt(block, 0); err != nil {
		return nil, err
	}
	header, err := unmarshalHeader(block)
	if err != nil {
		return nil, err
	}

	keySize := header.KeyType.KeySize()
	preview := make([][]byte, 0, header.Preview)
	pos := headerSize
	for i := 0; i < int(header.Preview); i++ {
		key := make([]byte, keySize)
		copy(key, block[pos:pos+keySize])
		preview = append(preview, key)
		pos += keySize
	}

	return &Reader{
		f:       f,
		header:  header,
		preview: preview,
		keySize: keySize,
		offSize: offsetSize(header.Offset64),
	}, nil
}

// Header returns the parsed FIDX header.
func (r *Reader) Header() Header { return r.header }

// Preview returns the preview array's keys, in ascending order.
func (r *Reader) Preview() [][]byte { return r.preview }

// rowSize is the on-disk size of one (key, offset) row.
func (r *Reader) rowSize() int { return r.keySize + r.offSize }

// RecordAt reads the 1-indexed rank'th row of the main section.
func (r *Reader) RecordAt(rank int) (key []byte, offset uint64, err error) {
	if rank < 1 || uint64(rank) > r.header.Records {
		return nil, 0, fidxError("fidx: rank out of range")
	}
	rowSize := r.rowSize()
	at := int64(blockSize) + int64(rank-1)*int64(rowSize)
	buf := make([]byte, rowSize)
	if _, err := r.f.ReadAt(buf, at); err != nil {
		return nil, 0, err
	}
	key = append([]byte(nil), buf[:r.keySize]...)
	if r.header.Offset64 {
		offset = binary.LittleEndian.Uint64(buf[r.keySize:])
	} else {
		offset = uint64(binary.LittleEndian.Uint32(buf[r.keySize:]))
	}
	return key, offset, nil
}

// Len returns the number of rows in the main section.
func (r *Reader) Len() int { return int(r.header.Records) }

// RecordAtByteOffset reads the row whose main-section byte offset is
// byteOffset, the position a projection index's own offset column
// records for a FLOW file (write_flow's "lseek64(flow_idx_fno, 0,
// SEEK_CUR)" at the moment it wrote that row).
func (r *Reader) RecordAtByteOffset(byteOffset uint64) (key []byte, offset uint64, err error) {
	rowSize := r.rowSize()
	if byteOffset < blockSize || (byteOffset-blockSize)%uint64(rowSize) != 0 {
		return nil, 0, fidxError("fidx: byte offset not row-aligned")
	}
	rank := int((byteOffset-blockSize)/uint64(rowSize)) + 1
	return r.RecordAt(rank)
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }
