package conv

// Deci renders tenths of a unit as a decimal string, 224 -> "22.4".
// buf needs at least 12 bytes.
func Deci(buf []byte, v int32) []byte {
	out := buf[:0]
	w := int64(v)
	if w < 0 {
		out = append(out, '-')
		w = -w
	}
	var tmp [12]byte
	out = append(out, Itoa(tmp[:], w/10)...)
	return append(out, '.', byte('0'+w%10))
}
