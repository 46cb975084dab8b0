package trbk

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ImageAsset is one embedded image to be written: a complete TRIM file
// plus its pixel dimensions for the directory entry.
type ImageAsset struct {
	Width  uint16
	Height uint16
	Data   []byte
}

// Writer assembles a version 2 book file. Used by the host tooling to
// build fixtures and to re-emit inspected books; the device only
// reads.
type Writer struct {
	Meta         Metadata
	ScreenWidth  uint16
	ScreenHeight uint16
	Toc          []TocEntry
	Pages        [][]Op
	Glyphs       []*Glyph
	Images       []ImageAsset
}

func writeLString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

// SerializeOps emits the wire form of one page's draw records.
func SerializeOps(ops []Op) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	for _, op := range ops {
		payload := bytes.NewBuffer(nil)
		switch o := op.(type) {
		case TextOp:
			binary.Write(payload, binary.LittleEndian, o.X)
			binary.Write(payload, binary.LittleEndian, o.Y)
			payload.WriteByte(o.Style)
			payload.WriteByte(0)
			payload.WriteString(o.Text)
		case ImageOp:
			binary.Write(payload, binary.LittleEndian, o.X)
			binary.Write(payload, binary.LittleEndian, o.Y)
			binary.Write(payload, binary.LittleEndian, o.Width)
			binary.Write(payload, binary.LittleEndian, o.Height)
			binary.Write(payload, binary.LittleEndian, o.Index)
			binary.Write(payload, binary.LittleEndian, uint16(0))
		case BreakOp:
		case RawOp:
			payload.Write(o.Payload)
		default:
			return nil, fmt.Errorf("unencodable op %T", op)
		}
		if payload.Len() > 0xFFFF {
			return nil, fmt.Errorf("record payload too large (%d bytes)", payload.Len())
		}
		buf.WriteByte(op.Opcode())
		binary.Write(buf, binary.LittleEndian, uint16(payload.Len()))
		buf.Write(payload.Bytes())
	}
	return buf.Bytes(), nil
}

func (w *Writer) metadataBytes() []byte {
	buf := bytes.NewBuffer(nil)
	m := &w.Meta
	for _, s := range []string{m.Title, m.Author, m.Language, m.Identifier, m.FontName} {
		writeLString(buf, s)
	}
	for _, f := range []any{
		m.CharWidth, m.LineHeight, m.Ascent,
		m.MarginLeft, m.MarginRight, m.MarginTop, m.MarginBottom,
	} {
		binary.Write(buf, binary.LittleEndian, f)
	}
	return buf.Bytes()
}

func (w *Writer) tocBytes() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	for _, e := range w.Toc {
		if int(e.PageIndex) >= len(w.Pages) {
			return nil, fmt.Errorf("TOC entry %q points past last page", e.Title)
		}
		writeLString(buf, e.Title)
		binary.Write(buf, binary.LittleEndian, e.PageIndex)
		buf.WriteByte(e.Level)
		buf.WriteByte(0)
		binary.Write(buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes(), nil
}

func (w *Writer) glyphBytes() []byte {
	buf := bytes.NewBuffer(nil)
	for _, g := range w.Glyphs {
		binary.Write(buf, binary.LittleEndian, g.Codepoint)
		buf.WriteByte(g.Style)
		buf.WriteByte(g.Width)
		buf.WriteByte(g.Height)
		binary.Write(buf, binary.LittleEndian, g.XAdvance)
		binary.Write(buf, binary.LittleEndian, g.XOffset)
		binary.Write(buf, binary.LittleEndian, g.YOffset)
		binary.Write(buf, binary.LittleEndian, uint32(len(g.BW)+len(g.LSB)+len(g.MSB)))
		buf.Write(g.BW)
		buf.Write(g.LSB)
		buf.Write(g.MSB)
	}
	return buf.Bytes()
}

func (w *Writer) imageBytes() []byte {
	if len(w.Images) == 0 {
		return nil
	}
	buf := bytes.NewBuffer(nil)
	binary.Write(buf, binary.LittleEndian, uint32(len(w.Images)))
	rel := uint32(4 + len(w.Images)*16)
	for _, img := range w.Images {
		binary.Write(buf, binary.LittleEndian, rel)
		binary.Write(buf, binary.LittleEndian, uint32(len(img.Data)))
		binary.Write(buf, binary.LittleEndian, img.Width)
		binary.Write(buf, binary.LittleEndian, img.Height)
		binary.Write(buf, binary.LittleEndian, uint32(0))
		rel += uint32(len(img.Data))
	}
	for _, img := range w.Images {
		buf.Write(img.Data)
	}
	return buf.Bytes()
}

// Serialize emits the complete book file.
func (w *Writer) Serialize() ([]byte, error) {
	meta := w.metadataBytes()
	toc, err := w.tocBytes()
	if err != nil {
		return nil, err
	}

	var lut bytes.Buffer
	var pageData bytes.Buffer
	for i, page := range w.Pages {
		binary.Write(&lut, binary.LittleEndian, uint32(pageData.Len()))
		ops, err := SerializeOps(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pageData.Write(ops)
	}

	glyphs := w.glyphBytes()
	images := w.imageBytes()

	headerSize := uint16(headerSizeV2 + len(meta))
	tocOffset := uint32(headerSize)
	lutOffset := tocOffset + uint32(len(toc))
	pageDataOffset := lutOffset + uint32(lut.Len())
	glyphTableOffset := pageDataOffset + uint32(pageData.Len())
	imagesOffset := uint32(0)
	if len(images) > 0 {
		imagesOffset = glyphTableOffset + uint32(len(glyphs))
	}

	hdr := Header{
		Magic:            magic,
		Version:          2,
		HeaderSize:       headerSize,
		ScreenWidth:      w.ScreenWidth,
		ScreenHeight:     w.ScreenHeight,
		PageCount:        uint32(len(w.Pages)),
		TocCount:         uint32(len(w.Toc)),
		PageLutOffset:    lutOffset,
		TocOffset:        tocOffset,
		PageDataOffset:   pageDataOffset,
		ImagesOffset:     imagesOffset,
		GlyphCount:       uint32(len(w.Glyphs)),
		GlyphTableOffset: glyphTableOffset,
	}

	out := bytes.NewBuffer(nil)
	binary.Write(out, binary.LittleEndian, &hdr)
	out.Write(meta)
	out.Write(toc)
	out.Write(lut.Bytes())
	out.Write(pageData.Bytes())
	out.Write(glyphs)
	out.Write(images)
	return out.Bytes(), nil
}
