package sharding

// CRC16-CCITT (XMODEM), polynomial 0x1021, init 0. This is the variant Redis
// Cluster uses for key slots; the standard library has no crc16.
var crc16tab = func() [256]uint16 {
	var tab [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		tab[i] = crc
	}
	return tab
}()

func crc16(buf []byte) uint16 {
	var crc uint16
	for _, b := range buf {
		crc = crc<<8 ^ crc16tab[byte(crc>>8)^b]
	}
	return crc
}
