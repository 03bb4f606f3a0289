package ami

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

const (
	// maxFrameFields bounds a single frame. Real frames carry a few dozen
	// fields; anything larger is treated as a desynchronised stream.
	maxFrameFields = 4096

	// endCommand terminates the free-form body of a "Response: Follows".
	endCommand = "--END COMMAND--"

	readerBufferSize = 16 * 1024
)

// Reader splits a manager protocol byte stream into frames.
//
// Reader keeps partially read data between calls, so a read deadline that
// fires in the middle of a frame does not lose it: the next ReadFrame call
// resumes where the previous one stopped.
type Reader struct {
	br *bufio.Reader

	partial   []byte
	cur       Frame
	malformed string
	follows   bool
	inOutput  bool
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, readerBufferSize)}
}

// ReadLine reads one raw line. It is used for the greeting banner the PBX
// sends before the first frame.
func (r *Reader) ReadLine() (string, error) {
	return r.readLine()
}

// ReadFrame returns the next complete frame.
//
// A frame containing a line that is not "Key: Value" is consumed up to its
// terminating blank line and reported as ErrMalformedFrame; the caller can
// keep reading. Any other error comes from the underlying reader.
func (r *Reader) ReadFrame() (Frame, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return Frame{}, err
		}

		if line == "" {
			if r.cur.Len() == 0 && r.malformed == "" {
				continue
			}
			f, bad := r.cur, r.malformed
			r.reset()
			if bad != "" {
				return Frame{}, fmt.Errorf("%w: %q", ErrMalformedFrame, bad)
			}
			return f, nil
		}

		if r.malformed != "" {
			continue
		}

		if r.follows {
			r.addFollowsLine(line)
			continue
		}

		key, value, ok := splitField(line)
		if !ok {
			r.malformed = line
			continue
		}
		r.cur.Add(key, value)

		if strings.EqualFold(key, FieldResponse) && strings.EqualFold(value, ResponseFollows) {
			r.follows = true
		}
		if r.cur.Len() > maxFrameFields {
			r.malformed = fmt.Sprintf("more than %d fields", maxFrameFields)
		}
	}
}

// addFollowsLine handles the body of a command response. Header fields
// keep their key/value form; once a free-form line appears every following
// line is collected as Output.
func (r *Reader) addFollowsLine(line string) {
	if line == endCommand {
		return
	}
	if !r.inOutput {
		if key, value, ok := splitField(line); ok {
			r.cur.Add(key, value)
			return
		}
		r.inOutput = true
	}
	r.cur.Add(FieldOutput, line)
}

func (r *Reader) reset() {
	r.cur = Frame{}
	r.malformed = ""
	r.follows = false
	r.inOutput = false
}

func (r *Reader) readLine() (string, error) {
	chunk, err := r.br.ReadString('\n')
	if err != nil {
		r.partial = append(r.partial, chunk...)
		return "", err
	}
	if len(r.partial) > 0 {
		chunk = string(r.partial) + chunk
		r.partial = r.partial[:0]
	}
	return strings.TrimRight(chunk, "\r\n"), nil
}

// splitField splits "Key: Value" on the first colon.
func splitField(line string) (key, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", false
	}
	value = strings.TrimLeft(line[idx+1:], " \t")
	return key, value, true
}

// Encode renders f in wire format: one "Key: Value\r\n" line per field and
// a terminating "\r\n".
func Encode(f Frame) ([]byte, error) {
	if err := validate(f); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, fld := range f.Fields {
		buf.WriteString(fld.Key)
		buf.WriteString(": ")
		buf.WriteString(fld.Value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

func validate(f Frame) error {
	if f.Len() == 0 {
		return fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}
	for _, fld := range f.Fields {
		if strings.TrimSpace(fld.Key) == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidFrame)
		}
		if strings.ContainsAny(fld.Key, "\r\n:") {
			return fmt.Errorf("%w: key %q", ErrInvalidFrame, fld.Key)
		}
		if strings.ContainsAny(fld.Value, "\r\n") {
			return fmt.Errorf("%w: value of %s contains a line break", ErrInvalidFrame, fld.Key)
		}
	}
	return nil
}
