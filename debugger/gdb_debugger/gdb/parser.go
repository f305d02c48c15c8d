package gdb

import (
	"fmt"
	"strconv"
	"strings"
)

// 记录的类型，对应MI输出的前缀字符
const (
	TypeResult  = "result"  // ^
	TypeExec    = "exec"    // *
	TypeStatus  = "status"  // +
	TypeNotify  = "notify"  // =
	TypeConsole = "console" // ~
	TypeTarget  = "target"  // @
	TypeLog     = "log"     // &
)

var recordTypes = map[byte]string{
	'^': TypeResult,
	'*': TypeExec,
	'+': TypeStatus,
	'=': TypeNotify,
	'~': TypeConsole,
	'@': TypeTarget,
	'&': TypeLog,
}

// ParseRecord 解析一行MI输出
// 异步记录和结果记录解析为 {"token", "type", "class", "payload"}，payload为map[string]any；
// 流记录解析为 {"type", "payload"}，payload为解码后的字符串。
// "(gdb)" 提示符返回nil。
//
// 例如 `12^done,bkpt={number="1",line="5"}` 解析为
//
//	token -> 12
//	type -> result
//	class -> done
//	payload -> {bkpt -> {number -> 1, line -> 5}}
func ParseRecord(line string) (map[string]any, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || strings.HasPrefix(line, "(gdb)") {
		return nil, nil
	}
	p := &parser{input: line}
	token := p.token()
	if p.eof() {
		return nil, fmt.Errorf("mi: record without type: %q", line)
	}
	typ, ok := recordTypes[p.peek()]
	if !ok {
		return nil, fmt.Errorf("mi: unknown record type %q in %q", p.peek(), line)
	}
	p.pos++
	record := map[string]any{"type": typ}
	if token != "" {
		record["token"] = token
	}

	switch typ {
	case TypeConsole, TypeTarget, TypeLog:
		s, err := p.cstring()
		if err != nil {
			return nil, err
		}
		record["payload"] = s
		return record, nil
	}

	record["class"] = p.ident()
	payload := make(map[string]any)
	for !p.eof() {
		if err := p.expect(','); err != nil {
			return nil, err
		}
		name, value, err := p.result()
		if err != nil {
			return nil, err
		}
		payload[name] = value
	}
	if len(payload) > 0 {
		record["payload"] = payload
	}
	return record, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *parser) peek() byte {
	return p.input[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.eof() || p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("mi: %s at %d in %q", fmt.Sprintf(format, args...), p.pos, p.input)
}

func (p *parser) token() string {
	start := p.pos
	for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == ',' || c == '=' || c == '{' || c == '[' || c == '}' || c == ']' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

// result name=value
func (p *parser) result() (string, any, error) {
	name := p.ident()
	if err := p.expect('='); err != nil {
		return "", nil, err
	}
	value, err := p.value()
	return name, value, err
}

func (p *parser) value() (any, error) {
	if p.eof() {
		return nil, p.errorf("unexpected end")
	}
	switch p.peek() {
	case '"':
		return p.cstring()
	case '{':
		return p.tuple()
	case '[':
		return p.list()
	default:
		return nil, p.errorf("unexpected %q", p.peek())
	}
}

// tuple {a="1",b="2"}，重复的key后者覆盖前者
func (p *parser) tuple() (map[string]any, error) {
	p.pos++
	m := make(map[string]any)
	if !p.eof() && p.peek() == '}' {
		p.pos++
		return m, nil
	}
	for {
		name, value, err := p.result()
		if err != nil {
			return nil, err
		}
		m[name] = value
		if p.eof() {
			return nil, p.errorf("unterminated tuple")
		}
		if p.peek() == '}' {
			p.pos++
			return m, nil
		}
		if err = p.expect(','); err != nil {
			return nil, err
		}
	}
}

// list 值列表[...]或结果列表[frame={...},frame={...}]，
// 结果列表的每一项解析为只有一个key的map
func (p *parser) list() ([]any, error) {
	p.pos++
	list := make([]any, 0)
	if !p.eof() && p.peek() == ']' {
		p.pos++
		return list, nil
	}
	for {
		if p.eof() {
			return nil, p.errorf("unterminated list")
		}
		var item any
		var err error
		switch p.peek() {
		case '"', '{', '[':
			item, err = p.value()
		default:
			var name string
			var value any
			name, value, err = p.result()
			item = map[string]any{name: value}
		}
		if err != nil {
			return nil, err
		}
		list = append(list, item)
		if p.eof() {
			return nil, p.errorf("unterminated list")
		}
		if p.peek() == ']' {
			p.pos++
			return list, nil
		}
		if err = p.expect(','); err != nil {
			return nil, err
		}
	}
}

// cstring 解码C风格的字符串
func (p *parser) cstring() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var sb strings.Builder
	for !p.eof() {
		c := p.peek()
		p.pos++
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if p.eof() {
				return "", p.errorf("unterminated escape")
			}
			e := p.peek()
			p.pos++
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'e':
				sb.WriteByte(0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				end := p.pos - 1
				for end < len(p.input) && end < p.pos+2 && p.input[end] >= '0' && p.input[end] <= '7' {
					end++
				}
				n, _ := strconv.ParseUint(p.input[p.pos-1:end], 8, 8)
				sb.WriteByte(byte(n))
				p.pos = end
			default:
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

// Quote 将参数编码为MI的C字符串
func Quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
