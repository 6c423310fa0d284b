package main

import (
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/tinyrange/jitcall/internal/jit"
)

type disasmLine struct {
	offset int
	raw    []byte
	text   string
}

func disassemble(arch jit.Arch, code []byte) ([]disasmLine, error) {
	switch arch {
	case jit.ArchAMD64:
		return disassembleAMD64(code)
	case jit.ArchARM64:
		return disassembleARM64(code)
	}
	return nil, fmt.Errorf("disassemble %s: %w", arch, jit.ErrUnsupportedArch)
}

func disassembleAMD64(code []byte) ([]disasmLine, error) {
	var out []disasmLine
	for pc := 0; pc < len(code); {
		inst, err := x86asm.Decode(code[pc:], 64)
		if err != nil {
			return nil, fmt.Errorf("decode at 0x%x: %w", pc, err)
		}
		out = append(out, disasmLine{
			offset: pc,
			raw:    code[pc : pc+inst.Len],
			text:   x86asm.IntelSyntax(inst, uint64(pc), nil),
		})
		pc += inst.Len
	}
	return out, nil
}

func disassembleARM64(code []byte) ([]disasmLine, error) {
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("arm64 code length %d is not a multiple of 4", len(code))
	}
	var out []disasmLine
	for pc := 0; pc < len(code); pc += 4 {
		inst, err := arm64asm.Decode(code[pc : pc+4])
		if err != nil {
			return nil, fmt.Errorf("decode at 0x%x: %w", pc, err)
		}
		out = append(out, disasmLine{
			offset: pc,
			raw:    code[pc : pc+4],
			text:   arm64asm.GNUSyntax(inst),
		})
	}
	return out, nil
}
