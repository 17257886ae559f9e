package mavlink

import (
	"fmt"
	"io"

	"github.com/bluenviron/gomavlib/v2/pkg/dialect"
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v2/pkg/frame"
	"github.com/bluenviron/gomavlib/v2/pkg/message"
)

// Decoder yields decoded messages from a byte stream one at a time.
type Decoder interface {
	Read() (message.Message, error)
}

// DecoderFunc builds a Decoder on top of an open connection.
type DecoderFunc func(rw io.ReadWriter) (Decoder, error)

type frameDecoder struct {
	reader *frame.Reader
}

// NewFrameDecoder decodes MAVLink v1/v2 frames using the common dialect.
// Messages outside the dialect come back as *message.MessageRaw.
func NewFrameDecoder(rw io.ReadWriter) (Decoder, error) {
	dialectRW, err := dialect.NewReadWriter(common.Dialect)
	if err != nil {
		return nil, fmt.Errorf("init dialect: %w", err)
	}

	reader, err := frame.NewReader(frame.ReaderConf{
		Reader:    rw,
		DialectRW: dialectRW,
	})
	if err != nil {
		return nil, fmt.Errorf("init frame reader: %w", err)
	}

	return &frameDecoder{reader: reader}, nil
}

func (d *frameDecoder) Read() (message.Message, error) {
	fr, err := d.reader.Read()
	if err != nil {
		return nil, err
	}
	return fr.GetMessage(), nil
}
