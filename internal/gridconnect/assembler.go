package gridconnect

// maxFrameLen bounds the accumulation buffer: ":X" + 8 id + type + 16 data + ";"
const maxFrameLen = 28

// Assembler reassembles frames from a byte stream whose reads may split
// frames at arbitrary positions. Not safe for concurrent use; the transport
// reader loop owns it.
type Assembler struct {
	buf     []byte
	inFrame bool
}

// Result of feeding bytes: complete frames plus anything thrown away.
type Result struct {
	Frames    []string
	Discarded []string
}

func NewAssembler() *Assembler {
	return &Assembler{buf: make([]byte, 0, maxFrameLen)}
}

// Feed consumes the bytes of one read and returns every frame completed by it.
// Bytes outside a frame (CR, LF, the '>' config prompt) are ignored. A second
// ':' before ';' drops the partial frame and starts a new one.
func (a *Assembler) Feed(chunk []byte) Result {
	var res Result

	for _, c := range chunk {
		switch {
		case c == StartByte:
			if a.inFrame && len(a.buf) > 0 {
				res.Discarded = append(res.Discarded, string(a.buf))
			}
			a.buf = append(a.buf[:0], c)
			a.inFrame = true

		case !a.inFrame:
			// Rauschen außerhalb eines Frames

		case c == EndByte:
			a.buf = append(a.buf, c)
			res.Frames = append(res.Frames, string(a.buf))
			a.reset()

		default:
			if len(a.buf) >= maxFrameLen {
				res.Discarded = append(res.Discarded, string(a.buf))
				a.reset()
				continue
			}
			a.buf = append(a.buf, c)
		}
	}

	return res
}

// Pending reports whether a partial frame is buffered.
func (a *Assembler) Pending() bool {
	return a.inFrame
}

// Reset drops any partial frame.
func (a *Assembler) Reset() {
	a.reset()
}

func (a *Assembler) reset() {
	a.buf = a.buf[:0]
	a.inFrame = false
}
