package arm64

import (
	"fmt"
)

func encodeAddImm64(dst, src Reg, imm uint16) (uint32, error) {
	if dst.size != size64 || src.size != size64 {
		return 0, fmt.Errorf("arm64 asm: ADD immediate requires 64-bit registers")
	}
	if imm > 0xFFF {
		return 0, fmt.Errorf("arm64 asm: immediate out of range for ADD (%d)", imm)
	}
	return 0x91000000 | (uint32(imm) << 10) | (uint32(src.id) << 5) | uint32(dst.id), nil
}

func encodeSubImm64(dst, src Reg, imm uint16) (uint32, error) {
	if dst.size != size64 || src.size != size64 {
		return 0, fmt.Errorf("arm64 asm: SUB immediate requires 64-bit registers")
	}
	if imm > 0xFFF {
		return 0, fmt.Errorf("arm64 asm: immediate out of range for SUB (%d)", imm)
	}
	return 0xD1000000 | (uint32(imm) << 10) | (uint32(src.id) << 5) | uint32(dst.id), nil
}

func encodeMoveReg(dst, src Reg) (uint32, error) {
	if dst.id == SP || src.id == SP {
		return 0, fmt.Errorf("arm64 asm: MOV (register) cannot address SP")
	}
	switch {
	case dst.size == size64 && src.size == size64:
		return 0xAA0003E0 | (uint32(src.id) << 16) | uint32(dst.id), nil
	case dst.size == size32 && src.size == size32:
		return 0x2A0003E0 | (uint32(src.id) << 16) | uint32(dst.id), nil
	default:
		return 0, fmt.Errorf("arm64 asm: unsupported MOV width dst=%d src=%d", dst.size, src.size)
	}
}

func encodeMovz(dst Reg, imm uint16, shift uint32) (uint32, error) {
	if dst.size != size64 {
		return 0, fmt.Errorf("arm64 asm: MOVZ requires 64-bit destination")
	}
	if dst.id == SP {
		return 0, fmt.Errorf("arm64 asm: MOVZ cannot target SP")
	}
	if shift%16 != 0 || shift > 48 {
		return 0, fmt.Errorf("arm64 asm: invalid MOVZ shift %d", shift)
	}
	hw := shift / 16
	return 0xD2800000 | (hw << 21) | (uint32(imm) << 5) | uint32(dst.id), nil
}

func encodeMovk(dst Reg, imm uint16, shift uint32) (uint32, error) {
	if dst.size != size64 {
		return 0, fmt.Errorf("arm64 asm: MOVK requires 64-bit destination")
	}
	if dst.id == SP {
		return 0, fmt.Errorf("arm64 asm: MOVK cannot target SP")
	}
	if shift%16 != 0 || shift > 48 {
		return 0, fmt.Errorf("arm64 asm: invalid MOVK shift %d", shift)
	}
	hw := shift / 16
	return 0xF2800000 | (hw << 21) | (uint32(imm) << 5) | uint32(dst.id), nil
}

// encodeMovImmediate materialises value with a MOVZ for the low halfword and
// a MOVK for every other non-zero halfword.
func encodeMovImmediate(dst Reg, value uint64) ([]uint32, error) {
	first, err := encodeMovz(dst, uint16(value), 0)
	if err != nil {
		return nil, err
	}
	out := []uint32{first}
	for shift := uint32(16); shift < 64; shift += 16 {
		chunk := uint16(value >> shift)
		if chunk == 0 {
			continue
		}
		w, err := encodeMovk(dst, chunk, shift)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func encodeLoadStoreUnsigned(reg Reg, mem Memory, store bool) (uint32, error) {
	if err := mem.validate(); err != nil {
		return 0, err
	}
	if reg.id == SP {
		return 0, fmt.Errorf("arm64 asm: cannot transfer SP through load/store")
	}
	if mem.disp < 0 {
		return 0, fmt.Errorf("arm64 asm: negative offsets not supported in unsigned load/store")
	}
	var scale uint32
	var base uint32
	switch reg.size {
	case size64:
		scale = 3
		base = 0xF9400000
		if store {
			base = 0xF9000000
		}
	case size32:
		scale = 2
		base = 0xB9400000
		if store {
			base = 0xB9000000
		}
	default:
		return 0, fmt.Errorf("arm64 asm: unsupported load/store width %d", reg.size)
	}
	if mem.disp%int32(1<<scale) != 0 {
		return 0, fmt.Errorf("arm64 asm: misaligned offset %d", mem.disp)
	}
	imm := mem.disp / int32(1<<scale)
	if imm > 0xFFF {
		return 0, fmt.Errorf("arm64 asm: offset out of range (%d)", mem.disp)
	}
	return base | (uint32(imm) << 10) | (uint32(mem.base.id) << 5) | uint32(reg.id), nil
}

// encodePairIndexed encodes 64-bit STP/LDP with pre- or post-indexed
// writeback. offset is in bytes and must be a multiple of 8 in [-512, 504].
func encodePairIndexed(first, second Reg, base Reg, offset int32, load, pre bool) (uint32, error) {
	if first.size != size64 || second.size != size64 || base.size != size64 {
		return 0, fmt.Errorf("arm64 asm: pair transfer requires 64-bit registers")
	}
	if first.id == SP || second.id == SP {
		return 0, fmt.Errorf("arm64 asm: cannot transfer SP through a pair")
	}
	if offset%8 != 0 || offset < -512 || offset > 504 {
		return 0, fmt.Errorf("arm64 asm: pair offset %d out of range", offset)
	}
	var op uint32
	switch {
	case pre && !load:
		op = 0xA9800000
	case pre && load:
		op = 0xA9C00000
	case !pre && !load:
		op = 0xA8800000
	default:
		op = 0xA8C00000
	}
	imm7 := uint32(offset/8) & 0x7F
	return op | imm7<<15 | uint32(second.id)<<10 | uint32(base.id)<<5 | uint32(first.id), nil
}

func encodeDivReg(dst, left, right Reg, signed bool) (uint32, error) {
	if dst.size != left.size || dst.size != right.size {
		return 0, fmt.Errorf("arm64 asm: DIV requires matching operand widths")
	}
	if dst.id == SP || left.id == SP || right.id == SP {
		return 0, fmt.Errorf("arm64 asm: DIV cannot address SP")
	}
	op := uint32(0x1AC00800)
	if dst.size == size64 {
		op = 0x9AC00800
	}
	if signed {
		op |= 0x400
	}
	return op | uint32(right.id)<<16 | uint32(left.id)<<5 | uint32(dst.id), nil
}

func encodeBranchReg(op uint32, target Reg) (uint32, error) {
	if target.size != size64 || target.id == SP {
		return 0, fmt.Errorf("arm64 asm: branch target must be a 64-bit general register")
	}
	return op | uint32(target.id)<<5, nil
}

// encodeFmovToVector moves a W or X register into S or D of dst.
func encodeFmovToVector(dst VReg, src Reg) (uint32, error) {
	if dst > V31 {
		return 0, fmt.Errorf("arm64 asm: invalid vector register %d", dst)
	}
	if src.id == SP {
		return 0, fmt.Errorf("arm64 asm: FMOV cannot read SP")
	}
	op := uint32(0x1E270000)
	if src.size == size64 {
		op = 0x9E670000
	}
	return op | uint32(src.id)<<5 | uint32(dst), nil
}

// encodeFmovFromVector moves S or D of src into a W or X register.
func encodeFmovFromVector(dst Reg, src VReg) (uint32, error) {
	if src > V31 {
		return 0, fmt.Errorf("arm64 asm: invalid vector register %d", src)
	}
	if dst.id == SP {
		return 0, fmt.Errorf("arm64 asm: FMOV cannot write SP")
	}
	op := uint32(0x1E260000)
	if dst.size == size64 {
		op = 0x9E660000
	}
	return op | uint32(src)<<5 | uint32(dst.id), nil
}
