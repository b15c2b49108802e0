package detector

import (
	"errors"
	"fmt"
	"image"
	"io"
)

// FrameSource yields decoded frames in order. Next returns io.EOF after the last frame.
type FrameSource interface {
	Next() (*image.RGBA, error)
	Close() error
}

// rawFrameReader decodes packed RGB24 frames from a stream
type rawFrameReader struct {
	r      io.Reader
	width  int
	height int
	buf    []byte
}

func newRawFrameReader(r io.Reader, width, height int) *rawFrameReader {
	return &rawFrameReader{
		r:      r,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}
}

// Next reads one frame into a fresh image. A truncated trailing frame is
// treated as the end of the stream.
func (r *rawFrameReader) Next() (*image.RGBA, error) {
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	for src, dst := 0, 0; src < len(r.buf); src, dst = src+3, dst+4 {
		img.Pix[dst] = r.buf[src]
		img.Pix[dst+1] = r.buf[src+1]
		img.Pix[dst+2] = r.buf[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img, nil
}
