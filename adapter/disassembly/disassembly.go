package disassembly

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
	godsutils "github.com/emirpasic/gods/utils"
	"github.com/fansqz/go-debug-adapter/adapter/handles"
	"github.com/fansqz/go-debug-adapter/debugger"
)

const (
	// noSymbolInstructions 没有符号时反汇编的指令数量
	noSymbolInstructions = 32
	// maxInstrBytes 每条指令最多展示的字节数
	maxInstrBytes = 8
)

// Disassembler 反汇编需要的引擎能力，debugger.Target实现了该接口
type Disassembler interface {
	ResolveAddress(address uint64) (*debugger.LineEntry, *debugger.Symbol, error)
	Disassemble(start, end uint64) ([]*debugger.Instruction, error)
	ReadInstructions(start uint64, count int) ([]*debugger.Instruction, error)
}

// Range 一段反汇编出来的指令区间[Start, End)
type Range struct {
	Handle       handles.Handle
	Start        uint64
	End          uint64
	Symbol       string
	Instructions []*debugger.Instruction
	text         string
}

// Index 反汇编区间缓存，按句柄和地址两种方式查找，整个会话内有效
type Index struct {
	target    Disassembler
	byHandle  *handles.HandleTree[*Range]
	byAddress *treemap.Map
}

func NewIndex(target Disassembler) *Index {
	return &Index{
		target:    target,
		byHandle:  handles.NewHandleTree[*Range](),
		byAddress: treemap.NewWith(godsutils.UInt64Comparator),
	}
}

// FromHandle source请求中的sourceReference
func (i *Index) FromHandle(handle handles.Handle) (*Range, bool) {
	return i.byHandle.Get(handle)
}

// Lookup 查找包含address的已缓存区间
func (i *Index) Lookup(address uint64) (*Range, bool) {
	_, v := i.byAddress.Floor(address)
	if v == nil {
		return nil, false
	}
	r := v.(*Range)
	if address >= r.End {
		return nil, false
	}
	return r, true
}

// FromAddress 返回包含address的区间，不存在时创建：
// 有符号时使用符号的整个地址范围，否则从address开始读取固定数量的指令。
func (i *Index) FromAddress(address uint64) (*Range, error) {
	if r, ok := i.Lookup(address); ok {
		return r, nil
	}
	var r *Range
	_, symbol, err := i.target.ResolveAddress(address)
	if err != nil {
		return nil, err
	}
	if symbol != nil && symbol.Start <= address && address < symbol.End {
		instructions, err := i.target.Disassemble(symbol.Start, symbol.End)
		if err != nil {
			return nil, err
		}
		r = &Range{Start: symbol.Start, End: symbol.End, Symbol: symbol.Name, Instructions: instructions}
	} else {
		instructions, err := i.target.ReadInstructions(address, noSymbolInstructions+1)
		if err != nil {
			return nil, err
		}
		if len(instructions) == 0 {
			return nil, fmt.Errorf("no instructions at 0x%X", address)
		}
		end := instructions[len(instructions)-1].Address
		if len(instructions) > noSymbolInstructions {
			instructions = instructions[:noSymbolInstructions]
		} else {
			last := instructions[len(instructions)-1]
			end = last.Address + uint64(max(len(last.Bytes), 1))
		}
		r = &Range{Start: address, End: end, Instructions: instructions}
	}
	key := fmt.Sprintf("%X-%X", r.Start, r.End)
	if h, ok := i.byHandle.Lookup(0, key); ok {
		existing, _ := i.byHandle.Get(h)
		return existing, nil
	}
	r.Handle = i.byHandle.Create(0, key, r)
	i.byAddress.Put(r.Start, r)
	return r, nil
}

// LineOf 地址对应的行号（从1开始）
func (r *Range) LineOf(address uint64) int {
	line := 1
	for idx, instr := range r.Instructions {
		if instr.Address > address {
			break
		}
		line = idx + 1
	}
	return line
}

// AddressOf 行号对应的指令地址
func (r *Range) AddressOf(line int) (uint64, bool) {
	if line < 1 || line > len(r.Instructions) {
		return 0, false
	}
	return r.Instructions[line-1].Address, true
}

// Name 在栈帧中展示的伪源文件名
func (r *Range) Name() string {
	if r.Symbol != "" {
		return fmt.Sprintf("@%s", r.Symbol)
	}
	return fmt.Sprintf("@0x%X", r.Start)
}

// Text 每条指令一行：地址、原始字节、助记符、操作数和可选的注释
func (r *Range) Text() string {
	if r.text != "" || len(r.Instructions) == 0 {
		return r.text
	}
	var sb strings.Builder
	dumpWidth := maxInstrBytes*3 + 2
	for _, instr := range r.Instructions {
		var dump strings.Builder
		for idx, b := range instr.Bytes {
			if idx >= maxInstrBytes {
				dump.WriteString(">")
				break
			}
			fmt.Fprintf(&dump, "%02X ", b)
		}
		fmt.Fprintf(&sb, "%08X: %-*s %-6s %s", instr.Address, dumpWidth, dump.String(), instr.Mnemonic, instr.Operands)
		if instr.Comment != "" {
			sb.WriteString("  ; ")
			sb.WriteString(instr.Comment)
		}
		sb.WriteString("\n")
	}
	r.text = sb.String()
	return r.text
}
