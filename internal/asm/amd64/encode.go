package amd64

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tinyrange/jitcall/internal/asm"
)

// REX is the bare register-extension prefix; REX.W, REX.R, REX.X and REX.B
// are or-ed into it.
const REX byte = 0x40

type rexState struct {
	w     bool
	r     bool
	x     bool
	b     bool
	force bool
}

func (r rexState) prefix() byte {
	if !r.w && !r.r && !r.x && !r.b && !r.force {
		return 0
	}
	p := REX
	if r.w {
		p |= 0x08
	}
	if r.r {
		p |= 0x04
	}
	if r.x {
		p |= 0x02
	}
	if r.b {
		p |= 0x01
	}
	return p
}

func (r rexState) appendTo(out []byte) []byte {
	if p := r.prefix(); p != 0 {
		out = append(out, p)
	}
	return out
}

func operandPrefix(size operandSize) (byte, bool) {
	if size == size16 {
		return 0x66, true
	}
	return 0x00, false
}

func checkSize(size operandSize) error {
	switch size {
	case size8, size16, size32, size64:
		return nil
	}
	return fmt.Errorf("unsupported register width %d bits", size)
}

type memEncoding struct {
	modrm byte
	sib   []byte
	disp  []byte
	rex   rexState
}

func (m memEncoding) appendTo(out []byte, reg byte) []byte {
	out = append(out, m.modrm|(reg&7)<<3)
	out = append(out, m.sib...)
	return append(out, m.disp...)
}

var scaleBits = map[uint8]byte{1: 0, 2: 1, 4: 2, 8: 3}

func encodeMemoryOperand(mem Memory) (memEncoding, error) {
	if err := mem.validate(); err != nil {
		return memEncoding{}, err
	}

	baseInfo, err := regInfo(mem.base.id)
	if err != nil {
		return memEncoding{}, err
	}

	var index *registerCode
	if mem.index != nil {
		if mem.index.id == RSP {
			return memEncoding{}, fmt.Errorf("%s: rsp cannot be an index", mem)
		}
		info, err := regInfo(mem.index.id)
		if err != nil {
			return memEncoding{}, err
		}
		index = &info
	}

	enc := memEncoding{rex: rexState{b: baseInfo.high, x: index != nil && index.high}}
	rm := baseInfo.code

	// rbp and r13 have no mod=00 form; [rbp] is written as [rbp+0].
	disp := mem.disp
	switch {
	case disp == 0 && rm != 5:
		enc.modrm = 0x00
	case disp >= math.MinInt8 && disp <= math.MaxInt8:
		enc.modrm = 0x40
		enc.disp = []byte{byte(disp)}
	default:
		enc.modrm = 0x80
		enc.disp = binary.LittleEndian.AppendUint32(nil, uint32(disp))
	}

	// rsp and r12 as base, or any index, need a SIB byte. Index 100 means none.
	if index != nil || rm == 4 {
		sib := byte(4) << 3
		if index != nil {
			sib = scaleBits[mem.scale]<<6 | index.code<<3
		}
		enc.sib = []byte{sib | baseInfo.code}
		rm = 4
	}

	enc.modrm |= rm
	return enc, nil
}

func encodePush(reg Reg) ([]byte, error) {
	if reg.size != size64 {
		return nil, fmt.Errorf("push requires a 64-bit register")
	}
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	out := rexState{b: info.high}.appendTo(make([]byte, 0, 2))
	return append(out, 0x50+info.code), nil
}

func encodePop(reg Reg) ([]byte, error) {
	if reg.size != size64 {
		return nil, fmt.Errorf("pop requires a 64-bit register")
	}
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	out := rexState{b: info.high}.appendTo(make([]byte, 0, 2))
	return append(out, 0x58+info.code), nil
}

// encodePushImm pushes a sign-extended 8 or 32-bit immediate. The stack slot
// is always 8 bytes wide.
func encodePushImm(value int32) []byte {
	if value >= math.MinInt8 && value <= math.MaxInt8 {
		return []byte{0x6A, byte(value)}
	}
	return binary.LittleEndian.AppendUint32([]byte{0x68}, uint32(value))
}

func encodeMovRegImm(reg Reg, value int64) ([]byte, error) {
	if err := checkSize(reg.size); err != nil {
		return nil, err
	}
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 10)
	if prefix, ok := operandPrefix(reg.size); ok {
		out = append(out, prefix)
	}
	out = rexState{
		w:     reg.size == size64,
		b:     info.high,
		force: reg.size == size8 && info.byteRex,
	}.appendTo(out)

	switch reg.size {
	case size64:
		out = append(out, 0xB8+info.code)
		out = binary.LittleEndian.AppendUint64(out, uint64(value))
	case size32:
		out = append(out, 0xB8+info.code)
		out = binary.LittleEndian.AppendUint32(out, uint32(value))
	case size16:
		out = append(out, 0xB8+info.code)
		out = binary.LittleEndian.AppendUint16(out, uint16(value))
	case size8:
		out = append(out, 0xB0+info.code, byte(value))
	}
	return out, nil
}

func encodeMovRegReg(dst, src Reg) ([]byte, error) {
	return encodeALURegReg(chooseOpcode(dst.size, 0x89, 0x88), dst, src)
}

func encodeMovMemImm(mem Memory, size operandSize, value int32) ([]byte, error) {
	memEnc, err := encodeMemoryOperand(mem)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 13)
	if prefix, ok := operandPrefix(size); ok {
		out = append(out, prefix)
	}
	rex := memEnc.rex
	rex.w = size == size64
	out = rex.appendTo(out)

	switch size {
	case size8:
		out = memEnc.appendTo(append(out, 0xC6), 0)
		out = append(out, byte(value))
	case size16:
		out = memEnc.appendTo(append(out, 0xC7), 0)
		out = binary.LittleEndian.AppendUint16(out, uint16(value))
	case size32, size64:
		out = memEnc.appendTo(append(out, 0xC7), 0)
		out = binary.LittleEndian.AppendUint32(out, uint32(value))
	default:
		return nil, fmt.Errorf("unsupported store width %d", size)
	}
	return out, nil
}

func encodeMovMemReg(mem Memory, src Reg) ([]byte, error) {
	return encodeRegMem(chooseOpcode(src.size, 0x89, 0x88), src, mem)
}

func encodeMovRegMem(dst Reg, mem Memory) ([]byte, error) {
	return encodeRegMem(chooseOpcode(dst.size, 0x8B, 0x8A), dst, mem)
}

func encodeRegMem(opcode byte, reg Reg, mem Memory) ([]byte, error) {
	if err := checkSize(reg.size); err != nil {
		return nil, err
	}
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	memEnc, err := encodeMemoryOperand(mem)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 9)
	if prefix, ok := operandPrefix(reg.size); ok {
		out = append(out, prefix)
	}
	rex := memEnc.rex
	rex.r = info.high
	rex.w = reg.size == size64
	rex.force = reg.size == size8 && info.byteRex
	out = rex.appendTo(out)

	out = append(out, opcode)
	return memEnc.appendTo(out, info.code), nil
}

func encodeCallReg(target Reg) ([]byte, error) {
	return encodeGroup5(2, target)
}

func encodeJmpReg(target Reg) ([]byte, error) {
	return encodeGroup5(4, target)
}

// encodeGroup5 emits FF /sub with a register operand. /2 is a near call and
// /4 a near jump; both always operate on 64 bits in long mode.
func encodeGroup5(sub byte, target Reg) ([]byte, error) {
	if target.size != size64 {
		return nil, fmt.Errorf("indirect branch target must be a 64-bit register")
	}
	info, err := regInfo(target.id)
	if err != nil {
		return nil, err
	}
	out := rexState{b: info.high}.appendTo(make([]byte, 0, 3))
	return append(out, 0xFF, 0xC0|sub<<3|info.code), nil
}

func encodeALURegImm(op byte, reg Reg, value int32) ([]byte, error) {
	if err := checkSize(reg.size); err != nil {
		return nil, err
	}
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 8)
	if prefix, ok := operandPrefix(reg.size); ok {
		out = append(out, prefix)
	}
	out = rexState{
		w:     reg.size == size64,
		b:     info.high,
		force: reg.size == size8 && info.byteRex,
	}.appendTo(out)

	modrm := 0xC0 | op<<3 | info.code
	switch {
	case reg.size == size8:
		out = append(out, 0x80, modrm, byte(value))
	case value >= math.MinInt8 && value <= math.MaxInt8:
		out = append(out, 0x83, modrm, byte(value))
	case reg.size == size16:
		out = append(out, 0x81, modrm)
		out = binary.LittleEndian.AppendUint16(out, uint16(value))
	default:
		out = append(out, 0x81, modrm)
		out = binary.LittleEndian.AppendUint32(out, uint32(value))
	}
	return out, nil
}

func encodeALURegReg(opcode byte, dst, src Reg) ([]byte, error) {
	if dst.size != src.size {
		return nil, fmt.Errorf("mismatched register widths: %d vs %d", dst.size, src.size)
	}
	if err := checkSize(dst.size); err != nil {
		return nil, err
	}

	dstInfo, err := regInfo(dst.id)
	if err != nil {
		return nil, err
	}
	srcInfo, err := regInfo(src.id)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4)
	if prefix, ok := operandPrefix(dst.size); ok {
		out = append(out, prefix)
	}
	out = rexState{
		w:     dst.size == size64,
		r:     srcInfo.high,
		b:     dstInfo.high,
		force: dst.size == size8 && (dstInfo.byteRex || srcInfo.byteRex),
	}.appendTo(out)

	return append(out, opcode, 0xC0|srcInfo.code<<3|dstInfo.code), nil
}

// encodeUnaryGroup3 emits F6/F7 with a register operand (div is /6, idiv /7).
func encodeUnaryGroup3(sub byte, reg Reg) ([]byte, error) {
	if err := checkSize(reg.size); err != nil {
		return nil, err
	}
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4)
	if prefix, ok := operandPrefix(reg.size); ok {
		out = append(out, prefix)
	}
	out = rexState{
		w:     reg.size == size64,
		b:     info.high,
		force: reg.size == size8 && info.byteRex,
	}.appendTo(out)

	return append(out, chooseOpcode(reg.size, 0xF7, 0xF6), 0xC0|sub<<3|info.code), nil
}

func chooseOpcode(size operandSize, wide, narrow byte) byte {
	if size == size8 {
		return narrow
	}
	return wide
}

func encodeAddRegImm(reg Reg, value int32) ([]byte, error) {
	return encodeALURegImm(0x00, reg, value)
}

func encodeSubRegImm(reg Reg, value int32) ([]byte, error) {
	return encodeALURegImm(0x05, reg, value)
}

func encodeAddRegReg(dst, src Reg) ([]byte, error) {
	return encodeALURegReg(chooseOpcode(dst.size, 0x01, 0x00), dst, src)
}

func encodeSubRegReg(dst, src Reg) ([]byte, error) {
	return encodeALURegReg(chooseOpcode(dst.size, 0x29, 0x28), dst, src)
}

func encodeXorRegReg(dst, src Reg) ([]byte, error) {
	return encodeALURegReg(chooseOpcode(dst.size, 0x31, 0x30), dst, src)
}

func encodeDivReg(reg Reg) ([]byte, error) {
	return encodeUnaryGroup3(6, reg)
}

func encodeIDivReg(reg Reg) ([]byte, error) {
	return encodeUnaryGroup3(7, reg)
}

func encodeRet() []byte {
	return []byte{0xC3}
}

func encodeRetImm(pop uint16) []byte {
	return binary.LittleEndian.AppendUint16([]byte{0xC2}, pop)
}

// encodeMovXmmReg emits movd (32-bit) or movq (64-bit) from a general-purpose
// register into the low lane of an xmm register: 66 REX.W? 0F 6E /r.
func encodeMovXmmReg(dst XMM, src Reg) ([]byte, error) {
	return encodeSSEMove(0x6E, dst, src)
}

// encodeMovRegXmm is the reverse direction: 66 REX.W? 0F 7E /r, with the
// xmm register in ModRM.reg.
func encodeMovRegXmm(dst Reg, src XMM) ([]byte, error) {
	return encodeSSEMove(0x7E, src, dst)
}

func encodeSSEMove(opcode byte, x XMM, reg Reg) ([]byte, error) {
	if reg.size != size32 && reg.size != size64 {
		return nil, fmt.Errorf("movd/movq requires a 32- or 64-bit register, got %d", reg.Bits())
	}
	xInfo, err := xmmInfo(x)
	if err != nil {
		return nil, err
	}
	gInfo, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}

	out := []byte{0x66}
	out = rexState{
		w: reg.size == size64,
		r: xInfo.high,
		b: gInfo.high,
	}.appendTo(out)
	return append(out, 0x0F, opcode, 0xC0|xInfo.code<<3|gInfo.code), nil
}

// EmitProgram encodes a fragment into a sealed program.
func EmitProgram(frag asm.Fragment) (asm.Program, error) {
	buf := asm.NewBuffer()
	if err := buf.Emit(frag); err != nil {
		return asm.Program{}, err
	}
	return buf.Seal(), nil
}

// EmitBytes encodes a fragment into a fresh byte slice.
func EmitBytes(frag asm.Fragment) ([]byte, error) {
	prog, err := EmitProgram(frag)
	if err != nil {
		return nil, err
	}
	return prog.Bytes(), nil
}
