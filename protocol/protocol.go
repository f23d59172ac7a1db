// Package protocol implements the line-oriented codec spoken on the
// lyrad control socket. A connection starts with a 5-byte header
// ("LYR" + two-digit version); each request is a single line holding a
// command and optionally quoted arguments. Responses are attribute lines
// followed by a blank line and, when "rows" is present, that many body
// lines.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	magic   = "LYR"
	version = "01"

	// Header opens every connection and every response.
	Header = magic + version
)

// Request is one parsed command line.
type Request struct {
	Command string
	Args    []string
}

// Reader parses requests from a stream after validating the header.
type Reader struct {
	r *bufio.Reader
}

// NewReader validates the stream header and returns a request reader.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	header := make([]byte, len(Header))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("invalid header")
	}
	if string(header[:len(magic)]) != magic {
		return nil, fmt.Errorf("unsupported format: %s", header[:len(magic)])
	}

	return &Reader{r: br}, nil
}

// ReadRequest reads the next non-empty, non-comment line and parses it.
// Returns io.EOF when the stream ends.
func (p *Reader) ReadRequest() (*Request, error) {
	for {
		line, err := p.r.ReadString('\n')
		if err == io.EOF && strings.TrimSpace(line) == "" {
			return nil, io.EOF
		}
		if err != nil && err != io.EOF {
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields, perr := splitQuoted(line)
		if perr != nil {
			return nil, perr
		}
		return &Request{Command: fields[0], Args: fields[1:]}, nil
	}
}

// splitQuoted splits a line on spaces, honoring double-quoted arguments
// with backslash escapes for quotes, backslashes and the control
// characters Quote encodes.
func splitQuoted(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuote := false
	escaped := false
	started := false

	for _, r := range line {
		switch {
		case escaped:
			switch r {
			case 'n':
				cur.WriteRune('\n')
			case 'r':
				cur.WriteRune('\r')
			case 't':
				cur.WriteRune('\t')
			default:
				cur.WriteRune(r)
			}
			escaped = false
		case r == '\\' && inQuote:
			escaped = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case r == ' ' && !inQuote:
			if started || cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote: %s", line)
	}
	if started || cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty request")
	}
	return fields, nil
}

// Quote renders s as a request argument, quoting when needed. Newlines,
// carriage returns and tabs are escaped so an argument can never break
// the one-request-per-line framing.
func Quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \"\\\n\r\t") {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Attr is one ordered response attribute.
type Attr struct {
	Key   string
	Value string
}

// WriteRequest writes one request line. The connection header is written
// once per connection by the caller, not here.
func WriteRequest(w io.Writer, command string, args ...string) error {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, command)
	for _, a := range args {
		parts = append(parts, Quote(a))
	}
	_, err := fmt.Fprintf(w, "%s\n", strings.Join(parts, " "))
	return err
}

// WriteResponse writes a full response: header, attribute lines, a blank
// line, then the body lines. When body is non-empty a "rows" attribute is
// added automatically.
func WriteResponse(w io.Writer, attrs []Attr, body []string) error {
	var b strings.Builder
	b.WriteString(Header)
	for _, attr := range attrs {
		fmt.Fprintf(&b, "%s: %s\n", attr.Key, attr.Value)
	}
	if len(body) > 0 {
		fmt.Fprintf(&b, "rows: %d\n", len(body))
	}
	b.WriteString("\n")
	for _, line := range body {
		b.WriteString(line)
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteError writes an error response for cmd.
func WriteError(w io.Writer, cmd, errType, desc string) error {
	return WriteResponse(w, []Attr{
		{Key: "error-cmd", Value: cmd},
		{Key: "error", Value: errType},
		{Key: "desc", Value: desc},
	}, nil)
}

// Response is one parsed response.
type Response struct {
	Attrs map[string]string
	Body  []string
}

// IsError reports whether the response carries an error attribute.
func (r *Response) IsError() bool {
	_, ok := r.Attrs["error"]
	return ok
}

// ReadResponse parses one response from the stream: header, attributes
// until a blank line, then "rows" body lines.
func ReadResponse(br *bufio.Reader) (*Response, error) {
	header := make([]byte, len(Header))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, err
	}
	if string(header[:len(magic)]) != magic {
		return nil, fmt.Errorf("unsupported format: %s", header[:len(magic)])
	}

	resp := &Response{Attrs: make(map[string]string)}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed attribute: %s", line)
		}
		resp.Attrs[parts[0]] = parts[1]
	}

	if rowsAttr, ok := resp.Attrs["rows"]; ok {
		rows, err := strconv.Atoi(rowsAttr)
		if err != nil {
			return nil, fmt.Errorf("malformed rows attribute: %s", rowsAttr)
		}
		for i := 0; i < rows; i++ {
			line, err := br.ReadString('\n')
			if err != nil {
				return nil, err
			}
			resp.Body = append(resp.Body, strings.TrimRight(line, "\n"))
		}
	}

	return resp, nil
}
