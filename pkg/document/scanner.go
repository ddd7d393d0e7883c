// ABOUTME: Lightweight boundary scanner for GraphQL documents
// ABOUTME: Finds top-level definitions by tracking braces, strings and comments

package document

// defFunc is called when a top-level definition starts. start is the first
// byte of the definition (its description when it has one) and prevEnd is
// the offset just past the last significant byte before it. at is the
// position of start. Returning false stops the scan.
type defFunc func(kind string, start, prevEnd int64, at Position) bool

// scanner is a byte-at-a-time state machine so chunk boundaries can fall
// anywhere, including inside tokens and strings.
//
// Known limits: keywords are recognised only at brace and paren depth 0;
// a type literally named like a keyword after "on"/"implements" is handled,
// anywhere else it is taken as a definition start.
type scanner struct {
	pos  int64 // offset of the byte being processed
	line int   // newlines before pos
	col  int   // runes between the last newline and pos

	braceDepth int
	parenDepth int

	quote    byte // active single-line string delimiter
	escaped  bool
	quoteRun int // consecutive '"' outside strings, not yet classified
	block    bool
	blockRun int
	blockEsc bool
	comment  bool

	tok         []byte
	tokStart    int64
	tokAt       Position
	tokSig      int64
	tokPrefixed bool
	prev        byte
	lastTok     string

	lastSig int64 // offset just past the last significant byte

	descStart   int64
	descSig     int64
	descAt      Position
	extendStart int64
	extendSig   int64
	extendAt    Position

	header   bool
	wantName bool
	curKind  string

	onDef   defFunc
	onName  func(name string)
	stopped bool
}

func newScanner(onDef defFunc) *scanner {
	return &scanner{
		onDef:       onDef,
		descStart:   -1,
		extendStart: -1,
	}
}

func (s *scanner) feed(chunk []byte) {
	for _, c := range chunk {
		if s.stopped {
			return
		}
		s.step(c)
		s.pos++
		if c == '\n' {
			s.line++
			s.col = 0
		} else if c&0xC0 != 0x80 {
			s.col++
		}
	}
}

// here is the position of the byte being processed
func (s *scanner) here() Position {
	return Position{Line: s.line + 1, Column: s.col + 1}
}

// finish flushes a token cut off by end of input
func (s *scanner) finish() {
	if s.stopped {
		return
	}
	if len(s.tok) > 0 {
		s.endToken()
	}
}

func (s *scanner) step(c byte) {
	switch {
	case s.comment:
		if c == '\n' {
			s.comment = false
		}
		return
	case s.block:
		s.stepBlock(c)
		s.lastSig = s.pos + 1
		return
	case s.quote != 0:
		s.stepString(c)
		s.lastSig = s.pos + 1
		return
	}

	if s.quoteRun > 0 {
		if c == '"' {
			s.quoteRun++
			if s.quoteRun == 3 {
				s.quoteRun = 0
				s.block = true
				s.blockRun = 0
			}
			s.lastSig = s.pos + 1
			return
		}
		run := s.quoteRun
		s.quoteRun = 0
		if run == 1 {
			s.quote = '"'
			s.stepString(c)
			s.lastSig = s.pos + 1
			return
		}
		// run == 2 was an empty string; c is ordinary input
	}

	if isIdentByte(c) {
		if len(s.tok) == 0 {
			s.tokStart = s.pos
			s.tokSig = s.lastSig
			s.tokAt = s.here()
			s.tokPrefixed = s.prev == '@' || s.prev == '$'
		}
		s.tok = append(s.tok, c)
		s.lastSig = s.pos + 1
		return
	}
	if len(s.tok) > 0 {
		s.endToken()
		if s.stopped {
			return
		}
	}

	switch c {
	case ' ', '\t', '\r', '\n', ',', 0xEF, 0xBB, 0xBF:
		s.prev = c
		return
	case '#':
		s.comment = true
		s.prev = c
		return
	case '"':
		if s.topLevel() && s.descStart < 0 {
			s.descStart = s.pos
			s.descSig = s.lastSig
			s.descAt = s.here()
		}
		s.quoteRun = 1
		s.lastSig = s.pos + 1
		s.prev = c
		return
	case '{':
		if s.topLevel() {
			if s.header {
				s.header = false
				s.wantName = false
			} else {
				s.define(KindQuery, s.pos, s.lastSig, s.here())
				s.header = false
				s.wantName = false
				if s.stopped {
					return
				}
			}
		}
		s.braceDepth++
	case '}':
		if s.braceDepth > 0 {
			s.braceDepth--
		}
	case '(':
		s.parenDepth++
	case ')':
		if s.parenDepth > 0 {
			s.parenDepth--
		}
	}

	s.descStart = -1
	s.lastSig = s.pos + 1
	s.prev = c
}

func (s *scanner) topLevel() bool {
	return s.braceDepth == 0 && s.parenDepth == 0
}

func (s *scanner) endToken() {
	tok := string(s.tok)
	s.tok = s.tok[:0]

	if !s.topLevel() {
		return
	}

	if s.tokPrefixed {
		if s.wantName && s.curKind == KindDirective {
			s.setName(tok)
		}
		s.descStart = -1
		return
	}

	if s.extendStart >= 0 {
		start, sig, at := s.extendStart, s.extendSig, s.extendAt
		s.extendStart = -1
		if IsDefinitionKind(tok) {
			s.define(tok, start, sig, at)
			s.lastTok = tok
			return
		}
	}

	if s.wantName {
		s.setName(tok)
		s.lastTok = tok
		return
	}

	afterTypeRef := s.header && (s.lastTok == "on" || s.lastTok == "implements")
	switch {
	case tok == "extend" && !afterTypeRef:
		s.extendStart, s.extendSig, s.extendAt = s.tokStart, s.tokSig, s.tokAt
		if s.descStart >= 0 {
			s.extendStart, s.extendSig, s.extendAt = s.descStart, s.descSig, s.descAt
		}
	case IsDefinitionKind(tok) && !afterTypeRef:
		start, sig, at := s.tokStart, s.tokSig, s.tokAt
		if s.descStart >= 0 {
			start, sig, at = s.descStart, s.descSig, s.descAt
		}
		s.define(tok, start, sig, at)
	default:
		s.descStart = -1
	}
	s.lastTok = tok
}

func (s *scanner) define(kind string, start, prevEnd int64, at Position) {
	s.header = true
	s.curKind = kind
	s.wantName = kind != KindSchema
	s.descStart = -1
	if !s.onDef(kind, start, prevEnd, at) {
		s.stopped = true
	}
}

func (s *scanner) setName(name string) {
	s.wantName = false
	if s.onName != nil {
		s.onName(name)
	}
}

func (s *scanner) stepString(c byte) {
	switch {
	case s.escaped:
		s.escaped = false
	case c == '\\':
		s.escaped = true
	case c == s.quote:
		s.quote = 0
	case c == '\n':
		// single-line strings cannot span lines; recover at the newline
		s.quote = 0
	}
}

func (s *scanner) stepBlock(c byte) {
	switch {
	case c == '\\':
		s.blockEsc = true
		s.blockRun = 0
	case c == '"' && s.blockEsc:
		s.blockEsc = false
	case c == '"':
		s.blockRun++
		if s.blockRun == 3 {
			s.block = false
			s.blockRun = 0
		}
	default:
		s.blockEsc = false
		s.blockRun = 0
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
