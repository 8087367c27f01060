package eventlog

// scanState is the current state of the CSV state machine.
type scanState uint8

const (
	stateFieldStart scanState = iota
	stateInField
	stateInQuotedField
	stateQuoteInQuotedField
)

// Scanner splits delimited lines using a finite state machine.
// It handles embedded delimiters, escaped quotes and trailing CR/LF.
type Scanner struct {
	delimiter byte
	state     scanState

	fieldStart int
	fieldEnd   int
}

// NewScanner creates a scanner for the given delimiter.
func NewScanner(delimiter byte) *Scanner {
	return &Scanner{delimiter: delimiter}
}

// ScanLine splits one line into field values.
// A line that ends inside a quoted field yields the partial field and leaves
// Unterminated reporting true.
func (s *Scanner) ScanLine(line []byte) []string {
	s.state = stateFieldStart
	if len(line) == 0 {
		return nil
	}

	fields := make([]string, 0, 8)
	needsUnescape := false

	for i := 0; i <= len(line); i++ {
		var c byte
		if i < len(line) {
			c = line[i]
		}
		end := i >= len(line) || c == '\r' || c == '\n'

		switch s.state {
		case stateFieldStart:
			switch {
			case end:
				fields = append(fields, "")
				if i < len(line) {
					return fields
				}
			case c == '"':
				s.fieldStart = i + 1
				s.state = stateInQuotedField
			case c == s.delimiter:
				fields = append(fields, "")
			default:
				s.fieldStart = i
				s.state = stateInField
			}

		case stateInField:
			if end || c == s.delimiter {
				fields = append(fields, string(line[s.fieldStart:i]))
				s.state = stateFieldStart
				if end {
					return fields
				}
			}

		case stateInQuotedField:
			if i >= len(line) {
				fields = append(fields, string(line[s.fieldStart:i]))
				return fields
			}
			if c == '"' {
				s.fieldEnd = i
				s.state = stateQuoteInQuotedField
			}

		case stateQuoteInQuotedField:
			switch {
			case end || c == s.delimiter:
				field := line[s.fieldStart:s.fieldEnd]
				if needsUnescape {
					field = unescapeQuotes(field)
					needsUnescape = false
				}
				fields = append(fields, string(field))
				s.state = stateFieldStart
				if end {
					return fields
				}
			case c == '"':
				// Escaped quote ("").
				needsUnescape = true
				s.state = stateInQuotedField
			default:
				// Stray character after a closing quote; be lenient.
				s.state = stateInQuotedField
			}
		}
	}

	return fields
}

// Unterminated reports whether the last scanned line ended inside a quoted
// field, so the record continues on the next physical line.
func (s *Scanner) Unterminated() bool {
	return s.state == stateInQuotedField
}

// unescapeQuotes replaces "" with " in a quoted field.
func unescapeQuotes(field []byte) []byte {
	buf := make([]byte, 0, len(field))
	for i := 0; i < len(field); i++ {
		if field[i] == '"' && i+1 < len(field) && field[i+1] == '"' {
			buf = append(buf, '"')
			i++
			continue
		}
		buf = append(buf, field[i])
	}
	return buf
}
