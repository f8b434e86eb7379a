package value

import (
	"fmt"
	"strconv"
	"strings"

	"ssw-trace-core/internal/bterr"
)

// ParseParams parses the compact component-parameter grammar: a
// comma-separated list of k=v pairs where v is a quoted string, an array
// `[...]`, a map `{...}`, null, true/false, a signed/unsigned integer
// (optionally 0b/0/0x-prefixed) or a double.
func ParseParams(input string) (*Value, error) {
	p := &paramParser{s: input}
	p.skipSpace()
	result := Map()
	if p.atEnd() {
		return result, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if err := p.expect('='); err != nil {
			return nil, err
		}
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if err := result.Insert(key, val); err != nil {
			return nil, bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "value", "parse_params", err.Error())
		}
		p.skipSpace()
		if p.atEnd() {
			break
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type paramParser struct {
	s   string
	pos int
}

func (p *paramParser) atEnd() bool { return p.pos >= len(p.s) }

func (p *paramParser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.s[p.pos]
}

func (p *paramParser) skipSpace() {
	for !p.atEnd() && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *paramParser) expect(c byte) error {
	if p.atEnd() || p.s[p.pos] != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *paramParser) errorf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "value", "parse_params",
		fmt.Sprintf("%s at offset %d in %q", msg, p.pos, p.s))
}

func (p *paramParser) parseIdent() (string, error) {
	start := p.pos
	for !p.atEnd() {
		c := p.s[p.pos]
		if c == '=' || c == ':' || c == ',' || c == ' ' || c == '\t' || c == ']' || c == '}' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected identifier")
	}
	return p.s[start:p.pos], nil
}

func (p *paramParser) parseValue() (*Value, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '"':
		s, err := p.parseQuotedString()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case c == '[':
		return p.parseArray()
	case c == '{':
		return p.parseMap()
	default:
		return p.parseScalarKeyword()
	}
}

func (p *paramParser) parseQuotedString() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		if p.atEnd() {
			return "", p.errorf("unterminated string")
		}
		c := p.s[p.pos]
		if c == '"' {
			p.pos++
			return sb.String(), nil
		}
		if c == '\\' && p.pos+1 < len(p.s) {
			p.pos++
			sb.WriteByte(p.s[p.pos])
			p.pos++
			continue
		}
		sb.WriteByte(c)
		p.pos++
	}
}

func (p *paramParser) parseArray() (*Value, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	out := Array()
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return out, nil
	}
	for {
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		out.Append(v)
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expect(']'); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *paramParser) parseMap() (*Value, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	out := Map()
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return out, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if err := out.Insert(key, v); err != nil {
			return nil, p.errorf("%s", err)
		}
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *paramParser) parseScalarKeyword() (*Value, error) {
	start := p.pos
	for !p.atEnd() {
		c := p.s[p.pos]
		if c == ',' || c == ']' || c == '}' || c == ' ' || c == '\t' {
			break
		}
		p.pos++
	}
	token := p.s[start:p.pos]
	if token == "" {
		return nil, p.errorf("expected value")
	}
	switch token {
	case "null":
		return Null(), nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	return parseNumber(token, p)
}

func parseNumber(token string, p *paramParser) (*Value, error) {
	if f, err := strconv.ParseFloat(token, 64); err == nil && looksLikeDouble(token) {
		return F64(f), nil
	}

	neg := false
	body := token
	switch {
	case strings.HasPrefix(body, "+"):
		body = body[1:]
	case strings.HasPrefix(body, "-"):
		neg = true
		body = body[1:]
	}

	base := 10
	switch {
	case strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X"):
		base = 16
		body = body[2:]
	case strings.HasPrefix(body, "0b") || strings.HasPrefix(body, "0B"):
		base = 2
		body = body[2:]
	case strings.HasPrefix(body, "0o") || strings.HasPrefix(body, "0O"):
		base = 8
		body = body[2:]
	case len(body) > 1 && body[0] == '0':
		base = 8
		body = body[1:]
	}

	if neg {
		iv, err := strconv.ParseInt(body, base, 64)
		if err != nil {
			return nil, p.errorf("invalid signed integer %q", token)
		}
		return S64(-iv), nil
	}

	uv, err := strconv.ParseUint(body, base, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", token)
	}
	return U64(uv), nil
}

func looksLikeDouble(token string) bool {
	return strings.ContainsAny(token, ".eE") && !strings.HasPrefix(token, "0x") && !strings.HasPrefix(token, "0X")
}
