package dn

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Parse parses an RFC 4514 distinguished name. The legacy RFC 2253 forms are
// also accepted: ';' as RDN separator, quoted values and spaces around
// separators. An empty or blank string yields the empty DN.
func Parse(s string) (DN, error) {
	p := &parser{s: s}
	p.skipSpaces()
	if p.eof() {
		return DN{}, nil
	}

	var rdns []RDN
	for {
		rdn, err := p.parseRDN()
		if err != nil {
			return DN{}, err
		}
		rdns = append(rdns, rdn)

		p.skipSpaces()
		if p.eof() {
			break
		}
		switch p.peek() {
		case ',', ';':
			p.pos++
			p.skipSpaces()
			if p.eof() {
				return DN{}, p.errorf("trailing RDN separator")
			}
		default:
			return DN{}, p.errorf("unexpected character %q", p.peek())
		}
	}
	return DN{rdns: rdns}, nil
}

// ParseRDN parses a single RDN such as "cn=John+sn=Smith".
func ParseRDN(s string) (RDN, error) {
	p := &parser{s: s}
	p.skipSpaces()
	if p.eof() {
		return nil, p.errorf("empty RDN")
	}
	rdn, err := p.parseRDN()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if !p.eof() {
		return nil, p.errorf("unexpected character %q", p.peek())
	}
	return rdn, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.s)
}

func (p *parser) peek() byte {
	return p.s[p.pos]
}

func (p *parser) skipSpaces() {
	for !p.eof() && p.s[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at position %d in %q", ErrInvalidDN, fmt.Sprintf(format, args...), p.pos, p.s)
}

func (p *parser) parseRDN() (RDN, error) {
	var rdn RDN
	for {
		ava, err := p.parseAVA()
		if err != nil {
			return nil, err
		}
		rdn = append(rdn, ava)

		p.skipSpaces()
		if !p.eof() && p.peek() == '+' {
			p.pos++
			p.skipSpaces()
			continue
		}
		return rdn, nil
	}
}

func (p *parser) parseAVA() (AVA, error) {
	start := p.pos
	for !p.eof() && p.peek() != '=' {
		switch p.peek() {
		case ',', ';', '+':
			return AVA{}, p.errorf("missing '=' in attribute type and value")
		}
		p.pos++
	}
	if p.eof() {
		return AVA{}, p.errorf("missing '=' in attribute type and value")
	}

	attrType := strings.TrimSpace(p.s[start:p.pos])
	if !validType(attrType) {
		return AVA{}, p.errorf("invalid attribute type %q", attrType)
	}
	p.pos++ // '='
	p.skipSpaces()

	value, err := p.parseValue()
	if err != nil {
		return AVA{}, err
	}
	return AVA{Type: attrType, Value: value}, nil
}

func (p *parser) parseValue() (string, error) {
	if p.eof() {
		return "", nil
	}
	switch p.peek() {
	case '#':
		return p.parseHexValue()
	case '"':
		return p.parseQuotedValue()
	}

	var buf []byte
	significant := 0
	for !p.eof() {
		c := p.peek()
		if c == ',' || c == ';' || c == '+' {
			break
		}
		if c == '\\' {
			b, err := p.parseEscape()
			if err != nil {
				return "", err
			}
			buf = append(buf, b)
			significant = len(buf)
			continue
		}
		buf = append(buf, c)
		p.pos++
		if c != ' ' {
			significant = len(buf)
		}
	}
	return string(buf[:significant]), nil
}

// parseEscape consumes a backslash escape and returns the byte it denotes.
func (p *parser) parseEscape() (byte, error) {
	p.pos++ // '\'
	if p.eof() {
		return 0, p.errorf("dangling escape")
	}
	c := p.peek()
	if isHex(c) && p.pos+1 < len(p.s) && isHex(p.s[p.pos+1]) {
		decoded, err := hex.DecodeString(p.s[p.pos : p.pos+2])
		if err != nil {
			return 0, p.errorf("invalid hex escape")
		}
		p.pos += 2
		return decoded[0], nil
	}
	switch c {
	case ' ', '"', '#', '+', ',', ';', '<', '=', '>', '\\':
		p.pos++
		return c, nil
	}
	return 0, p.errorf("invalid escape sequence \\%c", c)
}

func (p *parser) parseHexValue() (string, error) {
	p.pos++ // '#'
	start := p.pos
	for !p.eof() && isHex(p.peek()) {
		p.pos++
	}
	raw := p.s[start:p.pos]
	if raw == "" || len(raw)%2 != 0 {
		return "", p.errorf("invalid hex string value")
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return "", p.errorf("invalid hex string value")
	}
	return string(decoded), nil
}

func (p *parser) parseQuotedValue() (string, error) {
	p.pos++ // opening quote
	var buf []byte
	for {
		if p.eof() {
			return "", p.errorf("unterminated quoted value")
		}
		c := p.peek()
		switch c {
		case '"':
			p.pos++
			return string(buf), nil
		case '\\':
			b, err := p.parseEscape()
			if err != nil {
				return "", err
			}
			buf = append(buf, b)
		default:
			buf = append(buf, c)
			p.pos++
		}
	}
}

func validType(t string) bool {
	if t == "" {
		return false
	}
	if t[0] >= '0' && t[0] <= '9' {
		// numericoid
		for i := 0; i < len(t); i++ {
			c := t[i]
			if !(c >= '0' && c <= '9') && c != '.' {
				return false
			}
		}
		return true
	}
	for i := 0; i < len(t); i++ {
		c := t[i]
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isAlpha && !(i > 0 && (isDigit || c == '-')) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
