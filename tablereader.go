package squashfs

import "sync"

// metadataBlock is a single decompressed metadata block (spec §3), keyed
// by the absolute on-disk offset it was read from. It is immutable once
// materialized; next is the on-disk offset of the following block, so a
// cursor can advance across block boundaries without re-deriving it from
// the header every time.
type metadataBlock struct {
	data []byte
	next int64
}

// metadataStore is the MetadataStore component (spec §4.2): a
// content-addressed, file-offset-keyed cache of decompressed metadata
// blocks for one logical stream (inode table, directory table, or the
// auxiliary indirect tables: id table, fragment table, export table).
// Materialization is not racy because the extractor's metadata access is
// single-threaded (traversal runs on the main thread only); the mutex
// just makes concurrent lookups from tests/tools safe.
type metadataStore struct {
	sb     *Superblock
	mu     sync.Mutex
	byOfft map[int64]*metadataBlock
}

func newMetadataStore(sb *Superblock) *metadataStore {
	return &metadataStore{sb: sb, byOfft: make(map[int64]*metadataBlock)}
}

func (m *metadataStore) block(offset int64) (*metadataBlock, error) {
	m.mu.Lock()
	if b, ok := m.byOfft[offset]; ok {
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()

	hdr := make([]byte, 2)
	if _, err := m.sb.fs.ReadAt(hdr, offset); err != nil {
		return nil, err
	}
	lenN := m.sb.order.Uint16(hdr)
	compressed := lenN&0x8000 == 0
	payloadLen := int(lenN & 0x7fff)

	if payloadLen > SquashfsMetadataSize {
		return nil, ErrCorruptMetadata
	}

	buf := make([]byte, payloadLen)
	if _, err := m.sb.fs.ReadAt(buf, offset+2); err != nil {
		return nil, err
	}

	if compressed {
		var err error
		buf, err = m.sb.Comp.decompress(buf)
		if err != nil {
			return nil, err
		}
		if len(buf) > SquashfsMetadataSize {
			return nil, ErrCorruptMetadata
		}
	}

	next := offset + 2 + int64(payloadLen)
	if m.sb.Flags.Has(CHECK) {
		// one extra check-data byte trails the payload; it is not part
		// of the decompressed data, just skipped for the next block.
		next++
	}

	b := &metadataBlock{data: buf, next: next}

	m.mu.Lock()
	m.byOfft[offset] = b
	m.mu.Unlock()

	return b, nil
}

// tableReader is a MetadataCursor (spec §3): a logical position inside a
// metadata stream that advances transparently across block boundaries.
type tableReader struct {
	store     *metadataStore
	block     *metadataBlock
	blockOfft int64
	pos       int
}

func (sb *Superblock) newInodeReader(ino inodeRef) (*tableReader, error) {
	return sb.inodeMeta.newReader(int64(sb.InodeTableStart)+int64(ino.Index()), int(ino.Offset()))
}

func (sb *Superblock) newTableReader(base int64, start int) (*tableReader, error) {
	return sb.auxMeta.newReader(base, start)
}

func (m *metadataStore) newReader(base int64, start int) (*tableReader, error) {
	b, err := m.block(base)
	if err != nil {
		return nil, err
	}
	if start > len(b.data) {
		return nil, ErrCorruptMetadata
	}
	return &tableReader{store: m, block: b, blockOfft: base, pos: start}, nil
}

// Read advances the cursor, transparently materializing the next
// metadata block when the current one is exhausted.
func (t *tableReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if t.pos >= len(t.block.data) {
			nb, err := t.store.block(t.block.next)
			if err != nil {
				return n, err
			}
			t.block = nb
			t.blockOfft = t.block.next
			t.pos = 0
		}
		c := copy(p[n:], t.block.data[t.pos:])
		n += c
		t.pos += c
	}
	return n, nil
}
