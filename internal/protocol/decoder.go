package protocol

import (
	"bytes"
	"fmt"
)

var endSentinel = []byte(EndSentinel)

// MalformedFrameError reports a frame the decoder had to drop. Tag is the
// dropped frame's tag when it was readable.
type MalformedFrameError struct {
	Tag    string
	Reason string
}

func (e *MalformedFrameError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedFrame, e.Reason)
	}
	return fmt.Sprintf("%s: %s frame %s", ErrMalformedFrame, e.Tag, e.Reason)
}

func (e *MalformedFrameError) Unwrap() error { return ErrMalformedFrame }

// Decoder incrementally extracts frames from the worker's output stream.
// Chunk boundaries are arbitrary; a frame is emitted only once its sentinel
// has arrived. A Decoder is not safe for concurrent use: one reader owns it.
type Decoder struct {
	buf       []byte
	maxFrame  int
	discarded int64
	// skipping is set after an oversized frame until its sentinel passes.
	skipping bool
}

// NewDecoder returns a Decoder that refuses to buffer more than maxFrameBytes
// for a single frame. Non-positive values select DefaultMaxFrameBytes.
func NewDecoder(maxFrameBytes int) *Decoder {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &Decoder{maxFrame: maxFrameBytes}
}

// Feed appends chunk to the buffer and returns every frame completed by it,
// oldest first. Decoding stops at the first dropped frame: the error is a
// *MalformedFrameError and the frames returned precede it in the stream.
// Call Feed(nil) to continue with what is still buffered.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		if d.skipping {
			idx := bytes.Index(d.buf, endSentinel)
			if idx < 0 {
				d.keepSentinelPrefix()
				return frames, nil
			}
			d.buf = d.buf[idx+len(endSentinel):]
			d.skipping = false
			continue
		}

		start, tagEnd, ok := d.findStart()
		if start < 0 {
			d.drop(len(d.buf))
			return frames, nil
		}
		d.drop(start)
		tagEnd -= start

		if !ok {
			// Possible tag prefix at the end of the buffer.
			if len(d.buf) > d.maxFrame {
				d.drop(len(d.buf))
				return frames, &MalformedFrameError{Reason: fmt.Sprintf("tag prefix exceeds %d bytes", d.maxFrame)}
			}
			return frames, nil
		}

		tag := string(d.buf[1:tagEnd])
		payloadStart := tagEnd + 1
		idx := bytes.Index(d.buf[payloadStart:], endSentinel)
		if idx < 0 {
			if len(d.buf) > d.maxFrame {
				d.buf = d.buf[payloadStart:]
				d.keepSentinelPrefix()
				d.skipping = true
				return frames, &MalformedFrameError{Tag: tag, Reason: fmt.Sprintf("exceeds %d bytes", d.maxFrame)}
			}
			return frames, nil
		}

		if end := payloadStart + idx + len(endSentinel); end > d.maxFrame {
			d.buf = d.buf[end:]
			return frames, &MalformedFrameError{Tag: tag, Reason: fmt.Sprintf("exceeds %d bytes", d.maxFrame)}
		}

		frames = append(frames, Frame{
			Tag:     tag,
			Payload: string(d.buf[payloadStart : payloadStart+idx]),
		})
		d.buf = d.buf[payloadStart+idx+len(endSentinel):]
	}
}

// Close flushes the decoder at end of stream. It returns a
// *MalformedFrameError if the stream ended inside a frame; the partial buffer
// is discarded either way. The tail of an already reported oversized frame is
// not reported again.
func (d *Decoder) Close() error {
	skipping := d.skipping
	d.skipping = false
	var tag string
	if start, tagEnd, ok := d.findStart(); start >= 0 && ok {
		tag = string(d.buf[start+1 : tagEnd])
	}
	rest := bytes.TrimSpace(d.buf)
	d.buf = nil
	if len(rest) == 0 || skipping {
		return nil
	}
	return &MalformedFrameError{Tag: tag, Reason: fmt.Sprintf("stream ended inside a frame (%d bytes discarded)", len(rest))}
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Discarded returns the number of non-whitespace bytes skipped outside frames.
func (d *Decoder) Discarded() int64 {
	return d.discarded
}

// findStart locates the first ".TAG." in the buffer. It returns the index of
// the opening dot and of the closing dot. ok is false when the buffer ends
// inside a plausible tag; start is -1 when no candidate exists at all.
func (d *Decoder) findStart() (start, tagEnd int, ok bool) {
	for i := 0; i < len(d.buf); i++ {
		if d.buf[i] != '.' {
			continue
		}
		j := i + 1
		for j < len(d.buf) && isTagByte(d.buf[j], j == i+1) {
			j++
		}
		if j == len(d.buf) {
			return i, j, false
		}
		if d.buf[j] == '.' && j > i+1 && string(d.buf[i+1:j]) != "END" {
			return i, j, true
		}
	}
	return -1, 0, false
}

// keepSentinelPrefix drops everything except the bytes that could still be
// the start of a sentinel split across chunks.
func (d *Decoder) keepSentinelPrefix() {
	if keep := len(endSentinel) - 1; len(d.buf) > keep {
		d.buf = append([]byte(nil), d.buf[len(d.buf)-keep:]...)
	}
}

func (d *Decoder) drop(n int) {
	for _, c := range d.buf[:n] {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			d.discarded++
		}
	}
	d.buf = d.buf[n:]
	if len(d.buf) == 0 {
		d.buf = nil
	}
}
