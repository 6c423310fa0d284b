// Package testutil runs emitted machine code through a system disassembler
// so encoder tests can compare against an independent decoder.
package testutil

import (
	"bufio"
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Target says which disassembler understands an architecture and how to
// feed it a raw code blob.
type Target struct {
	Name    string
	Machine elf.Machine
	Tool    string
	// BFD is the GNU objdump machine name used with -b binary. When empty the
	// code is wrapped in a relocatable ELF object instead, which is the only
	// input llvm-objdump accepts.
	BFD  string
	Args []string
}

var (
	AMD64 = Target{
		Name:    "amd64",
		Machine: elf.EM_X86_64,
		Tool:    "objdump",
		BFD:     "i386:x86-64",
		Args:    []string{"-M", "att"},
	}
	// Older llvm-objdump releases print AArch64 immediates in decimal
	// unless asked otherwise.
	ARM64 = Target{
		Name:    "arm64",
		Machine: elf.EM_AARCH64,
		Tool:    "llvm-objdump",
		Args:    []string{"--print-imm-hex"},
	}
)

// Insn is one decoded instruction.
type Insn struct {
	Offset   uint64
	Op       string
	Operands string
}

func (i Insn) String() string {
	if i.Operands == "" {
		return i.Op
	}
	return i.Op + " " + i.Operands
}

// Listing is the decoded instruction stream in address order.
type Listing []Insn

// Disassemble decodes code with the target's tool. The test is skipped when
// the tool is not installed.
func Disassemble(t testing.TB, target Target, code []byte) Listing {
	t.Helper()

	tool, err := exec.LookPath(target.Tool)
	if err != nil {
		t.Skipf("%s: %s not installed", target.Name, target.Tool)
	}

	args := []string{"--no-show-raw-insn"}
	input := code
	if target.BFD != "" {
		args = append(args, "-D", "-z", "-b", "binary", "-m", target.BFD)
	} else {
		args = append(args, "-d")
		input = wrapELF(target.Machine, code)
	}
	args = append(args, target.Args...)

	path := filepath.Join(t.TempDir(), target.Name+".bin")
	if err := os.WriteFile(path, input, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	out, err := exec.Command(tool, append(args, path)...).CombinedOutput()
	if err != nil {
		t.Fatalf("%s %s: %v\n%s", target.Tool, strings.Join(args, " "), err, out)
	}

	listing := parseListing(out)
	if len(listing) == 0 {
		t.Fatalf("%s decoded nothing:\n%s", target.Tool, out)
	}
	return listing
}

// parseListing keeps only lines of the form "<hex offset>: <instruction>".
// Symbol headers, section banners and blank lines are dropped.
func parseListing(out []byte) Listing {
	var listing Listing
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		addr, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		off, err := strconv.ParseUint(strings.TrimSpace(addr), 16, 64)
		if err != nil {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		listing = append(listing, Insn{
			Offset:   off,
			Op:       strings.ToLower(fields[0]),
			Operands: strings.Join(fields[1:], " "),
		})
	}
	return listing
}

// wrapELF builds a relocatable object with a single executable .text section
// holding code.
func wrapELF(machine elf.Machine, code []byte) []byte {
	const (
		ehdrSize = 64
		shdrSize = 64
	)
	strtab := []byte("\x00.text\x00.shstrtab\x00")

	textOff := uint64(ehdrSize)
	strOff := textOff + uint64(len(code))
	shOff := (strOff + uint64(len(strtab)) + 7) &^ 7

	hdr := elf.Header64{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shOff,
		Ehsize:    ehdrSize,
		Shentsize: shdrSize,
		Shnum:     3,
		Shstrndx:  2,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	sections := []elf.Section64{
		{},
		{
			Name:      1,
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Off:       textOff,
			Size:      uint64(len(code)),
			Addralign: 4,
		},
		{
			Name:      7,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       strOff,
			Size:      uint64(len(strtab)),
			Addralign: 1,
		},
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, hdr)
	buf.Write(code)
	buf.Write(strtab)
	buf.Write(make([]byte, shOff-uint64(buf.Len())))
	_ = binary.Write(&buf, binary.LittleEndian, sections)
	return buf.Bytes()
}
