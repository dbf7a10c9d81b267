package can

// PDU2 threshold: PF values at or above carry a group extension in PS
const pdu2Threshold = 240

// BuildID assembles a 29-bit J1939 identifier.
// Layout: priority(3) | reserved(1) | data page(1) | PF(8) | PS(8) | SA(8)
func BuildID(priority uint8, pgn uint32, sa uint8) uint32 {
	dp := (pgn >> 16) & 0x01
	pf := (pgn >> 8) & 0xFF
	ps := pgn & 0xFF

	return uint32(priority&0x07)<<26 | dp<<24 | pf<<16 | ps<<8 | uint32(sa)
}

// ParseID splits a 29-bit identifier into priority, PGN and source address.
// For PDU1 frames the PS byte is a destination address and is not part of the PGN.
func ParseID(id uint32) (priority uint8, pgn uint32, sa uint8) {
	priority = uint8((id >> 26) & 0x07)
	dp := (id >> 24) & 0x01
	pf := (id >> 16) & 0xFF
	ps := (id >> 8) & 0xFF
	sa = uint8(id & 0xFF)

	if pf >= pdu2Threshold {
		pgn = dp<<16 | pf<<8 | ps
	} else {
		pgn = dp<<16 | pf<<8
	}

	return priority, pgn, sa
}

// NewJ1939 builds an extended message addressed with J1939 fields.
func NewJ1939(priority uint8, pgn uint32, sa uint8, data []byte) Message {
	return Message{
		ID:       BuildID(priority, pgn, sa),
		Extended: true,
		Data:     data,
	}
}
