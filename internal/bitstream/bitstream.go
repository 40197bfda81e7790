package bitstream

// UnpackGroups splits src into consecutive groups of width bits and stores each
// group, right-aligned, in dst. Bits are read MSB first and the first bit of a
// group is its most significant bit. len(dst) must be len(src)*8/width; any
// trailing bits that do not fill a whole group are ignored.
func UnpackGroups(dst []uint8, src []byte, width uint) {
	mask := uint32(1)<<width - 1
	var acc uint32
	var n uint
	j := 0
	for _, b := range src {
		acc = acc<<8 | uint32(b)
		n += 8
		for n >= width && j < len(dst) {
			n -= width
			dst[j] = uint8(acc >> n & mask)
			j++
		}
		acc &= uint32(1)<<n - 1
	}
}

// PackGroups is the inverse of UnpackGroups. Only the low width bits of each
// group are used. len(dst) must be len(groups)*width/8; a trailing partial byte
// is not written.
func PackGroups(dst []byte, groups []uint8, width uint) {
	mask := uint32(1)<<width - 1
	var acc uint32
	var n uint
	j := 0
	for _, g := range groups {
		acc = acc<<width | uint32(g)&mask
		n += width
		if n >= 8 && j < len(dst) {
			n -= 8
			dst[j] = byte(acc >> n)
			j++
			acc &= uint32(1)<<n - 1
		}
	}
}

// GroupCount returns how many whole width-bit groups n bytes hold.
func GroupCount(n int, width uint) int {
	return n * 8 / int(width)
}
