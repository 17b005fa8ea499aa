package fit

var crcTable = [16]uint16{
	0x0000, 0xCC01, 0xD801, 0x1400,
	0xF001, 0x3C00, 0x2800, 0xE401,
	0xA001, 0x6C00, 0x7800, 0xB401,
	0x5000, 0x9C01, 0x8801, 0x4400,
}

// UpdateCRC16 folds one byte into a running FIT CRC, low nibble first.
func UpdateCRC16(crc uint16, b byte) uint16 {
	tmp := crcTable[crc&0xF]
	crc = (crc >> 4) & 0x0FFF
	crc = crc ^ tmp ^ crcTable[b&0xF]

	tmp = crcTable[crc&0xF]
	crc = (crc >> 4) & 0x0FFF
	return crc ^ tmp ^ crcTable[(b>>4)&0xF]
}

// CRC16 computes the FIT CRC of data starting from zero.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = UpdateCRC16(crc, b)
	}
	return crc
}

// Checksum is a streaming FIT CRC calculator.
type Checksum struct {
	value uint16
}

// Write updates the checksum with p. It never fails.
func (c *Checksum) Write(p []byte) (int, error) {
	for _, b := range p {
		c.value = UpdateCRC16(c.value, b)
	}
	return len(p), nil
}

// Sum16 returns the checksum of everything written so far.
func (c *Checksum) Sum16() uint16 {
	return c.value
}

func (c *Checksum) Reset() {
	c.value = 0
}
