// Package summary implements the summary codec: a stable binary
// message per module, grounded on
// golang.org/x/tools/go/gcimporter15's binary export writer/reader
// idiom (a thin byte-oriented encoder over encoding/binary's varints).
//
// Unlike gcimporter's text-safe '$'-escaping (needed because export
// data used to be embedded in object-file comments), our summary is
// written to its own file, so no escaping is required — see DESIGN.md.
package summary

import (
	"bytes"
	"encoding/binary"
)

const formatVersion = 1

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

func (e *encoder) byte(b byte) { e.buf.WriteByte(b) }

func (e *encoder) bool(b bool) {
	if b {
		e.byte(1)
	} else {
		e.byte(0)
	}
}

func (e *encoder) int(x int) { e.int64(int64(x)) }

func (e *encoder) int64(x int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], x)
	e.buf.Write(tmp[:n])
}

func (e *encoder) uint64(x uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	e.buf.Write(tmp[:n])
}

func (e *encoder) string(s string) {
	e.int(len(s))
	e.buf.WriteString(s)
}

type decoder struct {
	data []byte
	pos  int
}

func newDecoder(data []byte) *decoder { return &decoder{data: data} }

func (d *decoder) byte() byte {
	b := d.data[d.pos]
	d.pos++
	return b
}

func (d *decoder) bool() bool { return d.byte() != 0 }

func (d *decoder) int() int { return int(d.int64()) }

func (d *decoder) int64() int64 {
	x, n := binary.Varint(d.data[d.pos:])
	d.pos += n
	return x
}

func (d *decoder) uint64() uint64 {
	x, n := binary.Uvarint(d.data[d.pos:])
	d.pos += n
	return x
}

func (d *decoder) string() string {
	n := d.int()
	s := string(d.data[d.pos : d.pos+n])
	d.pos += n
	return s
}

func (d *decoder) done() bool { return d.pos >= len(d.data) }
