// Package sse decodes Server-Sent-Events response bodies into JSON payloads.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/tidwall/gjson"

	"llmrace/internal/logger"
)

// ErrNoResponseBody is returned when a response carries no readable body.
var ErrNoResponseBody = errors.New("sse: no response body")

// ErrEventTooLarge is returned when one event's lines exceed maxEventSize.
var ErrEventTooLarge = errors.New("sse: event exceeds maximum size")

// DoneSentinel is the data payload that terminates a stream.
const DoneSentinel = "[DONE]"

const maxEventSize = 1 << 20

// Decoder yields the JSON payload of each event in an SSE stream.
//
// Bytes are buffered until a blank line closes the event, so events split
// across reads (including mid-line or mid-codepoint) decode the same as
// events delivered in a single read. Payloads that are not valid JSON are
// logged and skipped.
type Decoder struct {
	r    *bufio.Reader
	log  *logger.Logger
	done bool

	// Skipped counts malformed payloads that were dropped.
	Skipped int
}

// NewDecoder wraps body. A nil body fails with ErrNoResponseBody.
func NewDecoder(body io.Reader, log *logger.Logger) (*Decoder, error) {
	if body == nil {
		return nil, ErrNoResponseBody
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Decoder{r: bufio.NewReaderSize(body, 64*1024), log: log}, nil
}

// Next returns the next JSON payload. It returns io.EOF after the [DONE]
// sentinel or when the body ends; nothing is read past the sentinel.
func (d *Decoder) Next() (json.RawMessage, error) {
	for {
		if d.done {
			return nil, io.EOF
		}

		data, err := d.nextEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.done = true
			}
			return nil, err
		}

		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		if string(data) == DoneSentinel {
			d.done = true
			return nil, io.EOF
		}
		if !gjson.ValidBytes(data) {
			d.Skipped++
			d.log.WarnWithFields("Skipping malformed stream event", map[string]interface{}{
				"payload": truncate(data, 200),
			})
			continue
		}
		return json.RawMessage(append([]byte(nil), data...)), nil
	}
}

// nextEvent reads lines until a blank line and returns the joined data
// lines. A trailing event without a closing blank line is flushed at EOF.
func (d *Decoder) nextEvent() ([]byte, error) {
	var dataLines [][]byte
	size := 0
	for {
		line, err := d.readLine(maxEventSize - size)
		if errors.Is(err, ErrEventTooLarge) {
			return nil, err
		}
		if err != nil {
			line = bytes.TrimRight(line, "\r\n")
			dataLines = appendDataLine(dataLines, line)
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		size += len(line)
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) == 0 {
				size = 0
				continue
			}
			return bytes.Join(dataLines, []byte("\n")), nil
		}
		dataLines = appendDataLine(dataLines, line)
	}
}

// readLine reads through the next newline, failing once more than limit
// bytes have been seen, so a body without newlines cannot grow the buffer.
func (d *Decoder) readLine(limit int) ([]byte, error) {
	var line []byte
	for {
		frag, err := d.r.ReadSlice('\n')
		if len(line)+len(frag) > limit {
			return nil, ErrEventTooLarge
		}
		line = append(line, frag...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}

// appendDataLine keeps only data fields; event:, id:, retry: and comments
// are ignored.
func appendDataLine(dst [][]byte, line []byte) [][]byte {
	if !bytes.HasPrefix(line, []byte("data:")) {
		return dst
	}
	val := line[len("data:"):]
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	return append(dst, append([]byte(nil), val...))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
