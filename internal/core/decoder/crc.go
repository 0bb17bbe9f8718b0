package decoder

const (
	crcPolynomial = 0x31
	crcInit       = 0xFF
)

// CRC8 computes the Sensirion CRC-8 (polynomial 0x31, init 0xFF, MSB first,
// no reflection) over data.
func CRC8(data []byte) byte {
	crc := byte(crcInit)
	for _, b := range data {
		crc ^= b
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// CheckCRC reports whether word[2] is the CRC of word[0:2].
// Words shorter than 3 bytes never pass.
func CheckCRC(word []byte) bool {
	if len(word) < 3 {
		return false
	}
	return CRC8(word[0:2]) == word[2]
}
