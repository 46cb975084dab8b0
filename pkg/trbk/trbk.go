// Package trbk implements parsing and unparsing of 'TRBK' pre-rendered
// book files, the paged format the desktop converter produces from
// EPUBs.
//
// A file starts with a fixed little-endian header carrying the page
// geometry and section offsets, followed by a variable metadata block,
// the table of contents, the page lookup table (one u32 offset per
// page, relative to the page data section), the page data itself, a
// glyph table, and an embedded image table. Pages are sequences of
// opcode-tagged, length-prefixed draw records; unknown opcodes carry
// their own length and are skipped, so old readers survive new
// writers.
package trbk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

var magic = [4]byte{'T', 'R', 'B', 'K'}

// ErrNotBook marks files which are not TRBK at all, as opposed to
// damaged ones.
var ErrNotBook = fmt.Errorf("not a TRBK file")

const (
	// headerSizeV2 is the fixed part of a version 2 header.
	headerSizeV2 = 0x30
	// headerSizeV1 is the shorter version 1 fixed header, which
	// lacks the glyph table fields.
	headerSizeV1 = 0x2C
)

// Header is the fixed file header, version 2 layout. Version 1 files
// are mapped onto it with the missing fields zeroed.
type Header struct {
	Magic            [4]byte
	Version          uint8
	Flags            uint8
	HeaderSize       uint16
	ScreenWidth      uint16
	ScreenHeight     uint16
	PageCount        uint32
	TocCount         uint32
	PageLutOffset    uint32
	TocOffset        uint32
	PageDataOffset   uint32
	ImagesOffset     uint32
	SourceHash       uint32
	GlyphCount       uint32
	GlyphTableOffset uint32
}

// headerV1 is the on-disk version 1 layout.
type headerV1 struct {
	Magic          [4]byte
	Version        uint8
	Flags          uint8
	HeaderSize     uint16
	ScreenWidth    uint16
	ScreenHeight   uint16
	PageCount      uint32
	TocCount       uint32
	PageLutOffset  uint32
	TocOffset      uint32
	PageDataOffset uint32
	Reserved       [3]uint32
}

// Metadata is the variable block following the fixed header: the
// book's identity plus the layout numbers the converter rendered with.
type Metadata struct {
	Title      string
	Author     string
	Language   string
	Identifier string
	FontName   string

	CharWidth    uint16
	LineHeight   uint16
	Ascent       int16
	MarginLeft   uint16
	MarginRight  uint16
	MarginTop    uint16
	MarginBottom uint16
}

type TocEntry struct {
	Title     string
	PageIndex uint32
	Level     uint8
}

// Glyph is one pre-rasterized character. Mono glyphs carry only BW;
// gray glyphs additionally carry the two gray bit planes.
type Glyph struct {
	Codepoint uint32
	Style     uint8
	Width     uint8
	Height    uint8
	XAdvance  int16
	XOffset   int16
	YOffset   int16

	BW  []byte
	LSB []byte
	MSB []byte
}

// ImageEntry describes one embedded image: a whole TRIM file at Offset
// (absolute in the book file) of Length bytes.
type ImageEntry struct {
	Offset uint32
	Length uint32
	Width  uint16
	Height uint16
}

// Page draw opcodes.
const (
	OpText  uint8 = 0x01
	OpImage uint8 = 0x02
	OpBreak uint8 = 0x03
)

// Text style bits.
const (
	StyleBold   uint8 = 0x01
	StyleItalic uint8 = 0x02
)

// Op is one draw record of a page.
type Op interface {
	Opcode() uint8
}

// TextOp places a run of text at a layout position.
type TextOp struct {
	X     uint16
	Y     uint16
	Style uint8
	Text  string
}

func (TextOp) Opcode() uint8 { return OpText }

// ImageOp places embedded image Index scaled into a rectangle.
type ImageOp struct {
	X      uint16
	Y      uint16
	Width  uint16
	Height uint16
	Index  uint16
}

func (ImageOp) Opcode() uint8 { return OpImage }

// BreakOp separates paragraphs; carries no payload.
type BreakOp struct{}

func (BreakOp) Opcode() uint8 { return OpBreak }

// RawOp preserves an unrecognized record byte for byte.
type RawOp struct {
	Code    uint8
	Payload []byte
}

func (r RawOp) Opcode() uint8 { return r.Code }

// Book is an open TRBK file. Metadata, TOC, page lookup table, glyphs
// and the image directory are materialized at Open; page data and
// image payloads are read on demand through the retained reader.
type Book struct {
	Header Header
	Meta   Metadata
	Toc    []TocEntry

	r    io.ReaderAt
	size int64
	lut  []uint32

	glyphs map[glyphKey]*Glyph
	images []ImageEntry
}

type glyphKey struct {
	codepoint uint32
	style     uint8
}

// Open parses the structure of a book from r, which must remain valid
// for the life of the Book.
func Open(r io.ReaderAt, size int64) (*Book, error) {
	hdr, err := readHeader(r, size)
	if err != nil {
		return nil, err
	}
	b := Book{Header: *hdr, r: r, size: size}

	fixed := headerSizeV2
	if hdr.Version == 1 {
		fixed = headerSizeV1
	}
	if int(hdr.HeaderSize) < fixed {
		return nil, fmt.Errorf("header size %d shorter than fixed part", hdr.HeaderSize)
	}
	meta := make([]byte, int(hdr.HeaderSize)-fixed)
	if _, err := r.ReadAt(meta, int64(fixed)); err != nil {
		return nil, fmt.Errorf("could not read metadata: %w", err)
	}
	if err := parseMetadata(meta, &b.Meta); err != nil {
		return nil, fmt.Errorf("could not parse metadata: %w", err)
	}

	if hdr.TocCount > 0 {
		if uint32(hdr.HeaderSize) != hdr.TocOffset {
			return nil, fmt.Errorf("TOC offset %#x does not follow header", hdr.TocOffset)
		}
		if err := b.readToc(); err != nil {
			return nil, fmt.Errorf("could not read TOC: %w", err)
		}
	}
	if err := b.readLut(); err != nil {
		return nil, fmt.Errorf("could not read page table: %w", err)
	}
	if hdr.GlyphCount > 0 {
		if err := b.readGlyphs(); err != nil {
			return nil, fmt.Errorf("could not read glyph table: %w", err)
		}
	}
	if hdr.ImagesOffset > 0 {
		if err := b.readImageTable(); err != nil {
			return nil, fmt.Errorf("could not read image table: %w", err)
		}
	}
	return &b, nil
}

func readHeader(r io.ReaderAt, size int64) (*Header, error) {
	if size < headerSizeV1 {
		return nil, fmt.Errorf("%w: file too small (%d bytes)", ErrNotBook, size)
	}
	raw := make([]byte, headerSizeV2)
	if size < headerSizeV2 {
		raw = raw[:headerSizeV1]
	}
	if _, err := r.ReadAt(raw, 0); err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}
	if !bytes.Equal(raw[0:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrNotBook, raw[0:4])
	}
	switch raw[4] {
	case 1:
		var h1 headerV1
		if err := binary.Read(bytes.NewReader(raw[:headerSizeV1]), binary.LittleEndian, &h1); err != nil {
			return nil, err
		}
		return &Header{
			Magic: h1.Magic, Version: h1.Version, Flags: h1.Flags,
			HeaderSize: h1.HeaderSize, ScreenWidth: h1.ScreenWidth, ScreenHeight: h1.ScreenHeight,
			PageCount: h1.PageCount, TocCount: h1.TocCount,
			PageLutOffset: h1.PageLutOffset, TocOffset: h1.TocOffset, PageDataOffset: h1.PageDataOffset,
		}, nil
	case 2:
		var h Header
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &h); err != nil {
			return nil, err
		}
		return &h, nil
	}
	return nil, fmt.Errorf("unsupported version %d", raw[4])
}

// sectionReader returns a reader over [off, off+length), bounds
// checked against the file.
func (b *Book) sectionReader(off int64, length int64) (*io.SectionReader, error) {
	if off < 0 || length < 0 || off+length > b.size {
		return nil, fmt.Errorf("section %#x+%#x outside file (%d bytes)", off, length, b.size)
	}
	return io.NewSectionReader(b.r, off, length), nil
}

func readLString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > 1<<20 {
		return "", fmt.Errorf("implausible string length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func parseMetadata(raw []byte, m *Metadata) error {
	r := bytes.NewReader(raw)
	var err error
	for _, s := range []*string{&m.Title, &m.Author, &m.Language, &m.Identifier, &m.FontName} {
		if *s, err = readLString(r); err != nil {
			return err
		}
	}
	for _, f := range []any{
		&m.CharWidth, &m.LineHeight, &m.Ascent,
		&m.MarginLeft, &m.MarginRight, &m.MarginTop, &m.MarginBottom,
	} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func (b *Book) readToc() error {
	sr, err := b.sectionReader(int64(b.Header.TocOffset), b.size-int64(b.Header.TocOffset))
	if err != nil {
		return err
	}
	b.Toc = make([]TocEntry, 0, b.Header.TocCount)
	for i := uint32(0); i < b.Header.TocCount; i++ {
		title, err := readLString(sr)
		if err != nil {
			return err
		}
		var tail struct {
			PageIndex uint32
			Level     uint8
			Pad       uint8
			Pad2      uint16
		}
		if err := binary.Read(sr, binary.LittleEndian, &tail); err != nil {
			return err
		}
		if tail.PageIndex >= b.Header.PageCount {
			return fmt.Errorf("TOC entry %d points past last page (%d)", i, tail.PageIndex)
		}
		b.Toc = append(b.Toc, TocEntry{Title: title, PageIndex: tail.PageIndex, Level: tail.Level})
	}
	return nil
}

func (b *Book) readLut() error {
	n := int(b.Header.PageCount)
	sr, err := b.sectionReader(int64(b.Header.PageLutOffset), int64(n)*4)
	if err != nil {
		return err
	}
	b.lut = make([]uint32, n)
	if err := binary.Read(sr, binary.LittleEndian, &b.lut); err != nil {
		return err
	}
	return nil
}

func (b *Book) readGlyphs() error {
	sr, err := b.sectionReader(int64(b.Header.GlyphTableOffset), b.size-int64(b.Header.GlyphTableOffset))
	if err != nil {
		return err
	}
	b.glyphs = make(map[glyphKey]*Glyph, b.Header.GlyphCount)
	for i := uint32(0); i < b.Header.GlyphCount; i++ {
		var gh struct {
			Codepoint uint32
			Style     uint8
			Width     uint8
			Height    uint8
			XAdvance  int16
			XOffset   int16
			YOffset   int16
			BitmapLen uint32
		}
		if err := binary.Read(sr, binary.LittleEndian, &gh); err != nil {
			return fmt.Errorf("glyph %d: %w", i, err)
		}
		bitmap := make([]byte, gh.BitmapLen)
		if _, err := io.ReadFull(sr, bitmap); err != nil {
			return fmt.Errorf("glyph %d bitmap: %w", i, err)
		}
		g := Glyph{
			Codepoint: gh.Codepoint, Style: gh.Style,
			Width: gh.Width, Height: gh.Height,
			XAdvance: gh.XAdvance, XOffset: gh.XOffset, YOffset: gh.YOffset,
		}
		plane := (int(gh.Width)*int(gh.Height) + 7) / 8
		if int(gh.BitmapLen) == plane*3 {
			g.BW = bitmap[:plane]
			g.LSB = bitmap[plane : plane*2]
			g.MSB = bitmap[plane*2:]
		} else {
			g.BW = bitmap
		}
		b.glyphs[glyphKey{gh.Codepoint, gh.Style}] = &g
	}
	return nil
}

func (b *Book) readImageTable() error {
	base := int64(b.Header.ImagesOffset)
	sr, err := b.sectionReader(base, b.size-base)
	if err != nil {
		return err
	}
	var count uint32
	if err := binary.Read(sr, binary.LittleEndian, &count); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	// Two table generations exist: 16 byte entries with explicit
	// dimensions, and legacy 14 byte ones without padding. The first
	// entry's relative offset, which must land just past the table,
	// tells them apart.
	var first [16]byte
	if _, err := io.ReadFull(sr, first[:]); err != nil {
		return err
	}
	rel := binary.LittleEndian.Uint32(first[0:4])
	entrySize := 0
	switch int(rel) {
	case 4 + int(count)*16:
		entrySize = 16
	case 4 + int(count)*14:
		entrySize = 14
	default:
		return fmt.Errorf("image table start %#x matches no known entry size", rel)
	}

	b.images = make([]ImageEntry, count)
	raw := make([]byte, int(count)*entrySize)
	if _, err := b.r.ReadAt(raw, base+4); err != nil {
		return err
	}
	for i := range b.images {
		e := raw[i*entrySize:]
		b.images[i] = ImageEntry{
			Offset: uint32(base) + binary.LittleEndian.Uint32(e[0:4]),
			Length: binary.LittleEndian.Uint32(e[4:8]),
			Width:  binary.LittleEndian.Uint16(e[8:10]),
			Height: binary.LittleEndian.Uint16(e[10:12]),
		}
	}
	return nil
}

func (b *Book) PageCount() int {
	return int(b.Header.PageCount)
}

// pageRange resolves page n to an absolute extent in the file.
func (b *Book) pageRange(n int) (int64, int64, error) {
	if n < 0 || n >= len(b.lut) {
		return 0, 0, fmt.Errorf("page %d out of range [0, %d)", n, len(b.lut))
	}
	start := int64(b.lut[n])
	var end int64
	if n+1 < len(b.lut) {
		end = int64(b.lut[n+1])
	} else {
		switch {
		case b.Header.GlyphTableOffset > 0:
			end = int64(b.Header.GlyphTableOffset) - int64(b.Header.PageDataOffset)
		case b.Header.ImagesOffset > 0:
			end = int64(b.Header.ImagesOffset) - int64(b.Header.PageDataOffset)
		default:
			end = b.size - int64(b.Header.PageDataOffset)
		}
	}
	if end < start {
		return 0, 0, fmt.Errorf("page %d extent inverted (%#x > %#x)", n, start, end)
	}
	return int64(b.Header.PageDataOffset) + start, end - start, nil
}

// Page reads and decodes page n's draw records.
func (b *Book) Page(n int) ([]Op, error) {
	off, length, err := b.pageRange(n)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, length)
	if _, err := b.r.ReadAt(raw, off); err != nil {
		return nil, fmt.Errorf("could not read page %d: %w", n, err)
	}
	return ParseOps(raw)
}

// ParseOps decodes a page data extent. Unknown opcodes come back as
// RawOp with their payload preserved.
func ParseOps(raw []byte) ([]Op, error) {
	var ops []Op
	for len(raw) > 0 {
		if len(raw) < 3 {
			return nil, fmt.Errorf("truncated record header (%d bytes left)", len(raw))
		}
		code := raw[0]
		plen := int(binary.LittleEndian.Uint16(raw[1:3]))
		if len(raw) < 3+plen {
			return nil, fmt.Errorf("record 0x%02x truncated (%d of %d bytes)", code, len(raw)-3, plen)
		}
		payload := raw[3 : 3+plen]
		raw = raw[3+plen:]
		op, err := parseOp(code, payload)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func parseOp(code uint8, payload []byte) (Op, error) {
	switch code {
	case OpText:
		if len(payload) < 6 {
			return nil, fmt.Errorf("text record too short (%d bytes)", len(payload))
		}
		return TextOp{
			X:     binary.LittleEndian.Uint16(payload[0:2]),
			Y:     binary.LittleEndian.Uint16(payload[2:4]),
			Style: payload[4],
			Text:  string(payload[6:]),
		}, nil
	case OpImage:
		if len(payload) < 10 {
			return nil, fmt.Errorf("image record too short (%d bytes)", len(payload))
		}
		return ImageOp{
			X:      binary.LittleEndian.Uint16(payload[0:2]),
			Y:      binary.LittleEndian.Uint16(payload[2:4]),
			Width:  binary.LittleEndian.Uint16(payload[4:6]),
			Height: binary.LittleEndian.Uint16(payload[6:8]),
			Index:  binary.LittleEndian.Uint16(payload[8:10]),
		}, nil
	case OpBreak:
		return BreakOp{}, nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return RawOp{Code: code, Payload: cp}, nil
}

// Glyph looks up a pre-rasterized character, falling back to the
// regular style when the styled variant was not rendered.
func (b *Book) Glyph(cp rune, style uint8) *Glyph {
	if g, ok := b.glyphs[glyphKey{uint32(cp), style}]; ok {
		return g
	}
	if style != 0 {
		if g, ok := b.glyphs[glyphKey{uint32(cp), 0}]; ok {
			return g
		}
	}
	return nil
}

func (b *Book) GlyphCount() int {
	return len(b.glyphs)
}

func (b *Book) ImageCount() int {
	return len(b.images)
}

// Image returns embedded image i's directory entry and a reader over
// its raw TRIM payload.
func (b *Book) Image(i int) (ImageEntry, *io.SectionReader, error) {
	if i < 0 || i >= len(b.images) {
		return ImageEntry{}, nil, fmt.Errorf("image %d out of range [0, %d)", i, len(b.images))
	}
	e := b.images[i]
	sr, err := b.sectionReader(int64(e.Offset), int64(e.Length))
	if err != nil {
		return ImageEntry{}, nil, err
	}
	return e, sr, nil
}

// TocSelection returns the TOC row to preselect when the view opens:
// the last entry at or before page.
func (b *Book) TocSelection(page int) int {
	sel := 0
	for i, e := range b.Toc {
		if int(e.PageIndex) <= page {
			sel = i
		}
	}
	return sel
}
