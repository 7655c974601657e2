package fastcgi

import (
	"encoding/binary"
)

type header struct {
	Version       uint8
	Type          recType
	ID            uint16
	ContentLength uint16
	PaddingLength uint8
	Reserved      uint8
}

//for padding so we don't have to allocate all the time
//not synchronized because we don't care what the contents are
var pad [maxPad]byte

func (h *header) init(recType recType, reqID uint16, contentLength int) {
	h.Version = 1
	h.Type = recType
	h.ID = reqID
	h.ContentLength = uint16(contentLength)
	h.PaddingLength = uint8(-contentLength & 7)
}

func parseHeader(b []byte) header {
	return header{
		Version:       b[0],
		Type:          recType(b[1]),
		ID:            binary.BigEndian.Uint16(b[2:4]),
		ContentLength: binary.BigEndian.Uint16(b[4:6]),
		PaddingLength: b[6],
		Reserved:      b[7],
	}
}

func (h *header) marshal(b []byte) {
	b[0] = h.Version
	b[1] = uint8(h.Type)
	binary.BigEndian.PutUint16(b[2:4], h.ID)
	binary.BigEndian.PutUint16(b[4:6], h.ContentLength)
	b[6] = h.PaddingLength
	b[7] = h.Reserved
}

func readSize(s []byte) (uint32, int) {
	if len(s) == 0 {
		return 0, 0
	}

	size, n := uint32(s[0]), 1

	if size&(1<<7) != 0 {
		if len(s) < 4 {
			return 0, 0
		}

		n = 4
		size = binary.BigEndian.Uint32(s)
		size &^= 1 << 31
	}

	return size, n
}

func encodeSize(b []byte, size uint32) int {
	if size > 127 {
		size |= 1 << 31
		binary.BigEndian.PutUint32(b, size)

		return 4
	}

	b[0] = byte(size)

	return 1
}

//decodePairs reads a complete name-value stream. It reports false when a
//length prefix or the content it announces overruns the buffer.
func decodePairs(s []byte) (map[string]string, bool) {
	pairs := make(map[string]string)

	for len(s) > 0 {
		nameSize, n := readSize(s)
		if n == 0 {
			return nil, false
		}
		s = s[n:]

		valueSize, n := readSize(s)
		if n == 0 {
			return nil, false
		}
		s = s[n:]

		if uint64(nameSize)+uint64(valueSize) > uint64(len(s)) {
			return nil, false
		}

		name := string(s[:nameSize])
		s = s[nameSize:]
		value := string(s[:valueSize])
		s = s[valueSize:]

		pairs[name] = value
	}

	return pairs, true
}

//encodePairs writes pairs as a name-value stream. The caller is responsible
//for record framing.
func encodePairs(pairs map[string]string) []byte {
	var out []byte
	b := make([]byte, 8)

	for k, v := range pairs {
		n := encodeSize(b, uint32(len(k)))
		n += encodeSize(b[n:], uint32(len(v)))

		out = append(out, b[:n]...)
		out = append(out, k...)
		out = append(out, v...)
	}

	return out
}
