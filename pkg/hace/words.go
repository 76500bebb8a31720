package hace

import "encoding/binary"

func putWords32(dst []byte, w []uint32) {
	for i, v := range w {
		binary.BigEndian.PutUint32(dst[i*4:], v)
	}
}

func putWords64(dst []byte, w []uint64) {
	for i, v := range w {
		binary.BigEndian.PutUint64(dst[i*8:], v)
	}
}

func loadWords32(w []uint32, src []byte) {
	for i := range w {
		w[i] = binary.BigEndian.Uint32(src[i*4:])
	}
}

func loadWords64(w []uint64, src []byte) {
	for i := range w {
		w[i] = binary.BigEndian.Uint64(src[i*8:])
	}
}
