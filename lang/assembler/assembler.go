// Package assembler turns Buzz's textual assembly (what the parser's code
// generator emits directly, with no intervening AST) into the binary
// bytecode blob vm.VM.Load expects. It is a classic two-pass assembler:
// pass 1 walks the source computing each label's final byte offset and
// collecting the string table; pass 2 re-walks it emitting opcode bytes
// with label and string operands resolved to their final integers.
package assembler

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/buzzlang/buzz/vm"
)

type instr struct {
	op       vm.Op
	operand  string // raw operand text, empty if op has no operand
	line     int
	pc       int
}

// Assemble compiles src into a bytecode blob ready for vm.VM.Load.
func Assemble(src string) ([]byte, error) {
	instrs, labels, strings_, err := firstPass(src)
	if err != nil {
		return nil, err
	}
	code, err := secondPass(instrs, labels, strings_)
	if err != nil {
		return nil, err
	}
	return buildBlob(strings_, code), nil
}

func firstPass(src string) ([]instr, map[string]int, []string, error) {
	var instrs []instr
	labels := map[string]int{}
	var strTable []string
	strIndex := map[string]int{}

	pc := 0
	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasSuffix(line, ":") {
			name := strings.TrimSuffix(line, ":")
			if _, dup := labels[name]; dup {
				return nil, nil, nil, fmt.Errorf("assembler: line %d: duplicate label %q", lineNo, name)
			}
			labels[name] = pc
			continue
		}

		mnem, operand := splitInstr(line)
		op, ok := vm.LookupMnemonic(mnem)
		if !ok {
			return nil, nil, nil, fmt.Errorf("assembler: line %d: unknown mnemonic %q", lineNo, mnem)
		}
		if op.HasArg() && operand == "" {
			return nil, nil, nil, fmt.Errorf("assembler: line %d: %s requires an operand", lineNo, mnem)
		}
		if !op.HasArg() && operand != "" {
			return nil, nil, nil, fmt.Errorf("assembler: line %d: %s takes no operand", lineNo, mnem)
		}
		if op == vm.OpPushS {
			text, err := unquote(operand)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("assembler: line %d: %v", lineNo, err)
			}
			if _, seen := strIndex[text]; !seen {
				strIndex[text] = len(strTable)
				strTable = append(strTable, text)
			}
		}

		instrs = append(instrs, instr{op: op, operand: operand, line: lineNo, pc: pc})
		pc++
		if op.HasArg() {
			pc += 4
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, nil, err
	}
	return instrs, labels, strTable, nil
}

func secondPass(instrs []instr, labels map[string]int, strTable []string) ([]byte, error) {
	strIndex := map[string]int{}
	for i, s := range strTable {
		strIndex[s] = i
	}

	var code []byte
	for _, in := range instrs {
		code = append(code, byte(in.op))
		if !in.op.HasArg() {
			continue
		}
		var operand int32
		switch {
		case in.op == vm.OpPushS:
			text, _ := unquote(in.operand)
			operand = int32(strIndex[text])
		case in.op.IsLabelArg():
			pc, ok := labels[in.operand]
			if !ok {
				return nil, fmt.Errorf("assembler: line %d: undefined label %q", in.line, in.operand)
			}
			operand = int32(pc)
		case in.op == vm.OpPushF:
			f, err := strconv.ParseFloat(in.operand, 32)
			if err != nil {
				return nil, fmt.Errorf("assembler: line %d: bad float operand %q", in.line, in.operand)
			}
			operand = int32(float32ToBits(float32(f)))
		default:
			n, err := strconv.ParseInt(in.operand, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("assembler: line %d: bad integer operand %q", in.line, in.operand)
			}
			operand = int32(n)
		}
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(operand))
		code = append(code, tmp[:]...)
	}
	return code, nil
}

func splitInstr(line string) (mnemonic, operand string) {
	fields := strings.SplitN(line, " ", 2)
	mnemonic = fields[0]
	if len(fields) == 2 {
		operand = strings.TrimSpace(fields[1])
	}
	return mnemonic, operand
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected quoted string operand, got %q", s)
	}
	return strconv.Unquote(s)
}

func buildBlob(strTable []string, code []byte) []byte {
	var blob []byte
	blob = append(blob, 'B', 'Z', 'Z', 'B')
	blob = appendU16(blob, 1)
	blob = appendU16(blob, 0)
	blob = appendU16(blob, uint16(len(strTable)))
	for _, s := range strTable {
		blob = appendU16(blob, uint16(len(s)))
		blob = append(blob, s...)
	}
	blob = appendU32(blob, uint32(len(code)))
	blob = append(blob, code...)
	return blob
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
