package validation

import "bytes"

type signature struct {
	name    string
	pattern []byte
	// anchored signatures only match at offset 0.
	anchored bool
	// kinds limits the signature to those families; empty means all.
	kinds []Kind
}

const eicar = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

var defaultSignatures = []signature{
	{name: "pe_header", pattern: []byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00"), anchored: true},
	{name: "pe_stub", pattern: []byte("This program cannot be run in DOS mode")},
	{name: "elf_header", pattern: []byte("\x7fELF\x01"), anchored: true},
	{name: "elf_header", pattern: []byte("\x7fELF\x02"), anchored: true},
	{name: "macho_header", pattern: []byte{0xfe, 0xed, 0xfa, 0xce}, anchored: true},
	{name: "macho_header", pattern: []byte{0xfe, 0xed, 0xfa, 0xcf}, anchored: true},
	{name: "macho_header", pattern: []byte{0xce, 0xfa, 0xed, 0xfe}, anchored: true},
	{name: "macho_header", pattern: []byte{0xcf, 0xfa, 0xed, 0xfe}, anchored: true},
	{name: "macho_fat", pattern: []byte{0xca, 0xfe, 0xba, 0xbe}, anchored: true},
	{name: "script_shebang", pattern: []byte("#!/"), anchored: true},
	{name: "eicar_test", pattern: []byte(eicar)},
	{name: "pdf_javascript", pattern: []byte("/JavaScript"), kinds: []Kind{KindPDF}},
	{name: "pdf_javascript", pattern: []byte("/JS "), kinds: []Kind{KindPDF}},
	{name: "pdf_javascript", pattern: []byte("/JS("), kinds: []Kind{KindPDF}},
	{name: "pdf_javascript", pattern: []byte("/JS<"), kinds: []Kind{KindPDF}},
	{name: "pdf_launch", pattern: []byte("/Launch"), kinds: []Kind{KindPDF}},
	{name: "pdf_embedded_file", pattern: []byte("/EmbeddedFile"), kinds: []Kind{KindPDF}},
	{name: "ooxml_macro", pattern: []byte("vbaProject.bin"), kinds: []Kind{KindDOCX}},
}

// signatureIndex buckets signatures by first byte so one pass over the
// buffer only compares patterns that can start at the current position.
type signatureIndex struct {
	anchored []signature
	byFirst  [256][]signature
}

func buildSignatureIndex(sigs []signature) signatureIndex {
	var idx signatureIndex
	for _, s := range sigs {
		if len(s.pattern) == 0 {
			continue
		}
		if s.anchored {
			idx.anchored = append(idx.anchored, s)
			continue
		}
		idx.byFirst[s.pattern[0]] = append(idx.byFirst[s.pattern[0]], s)
	}
	return idx
}

// scan returns the name of the first signature found in data, or "".
func (idx signatureIndex) scan(data []byte, kind Kind) string {
	for _, s := range idx.anchored {
		if s.appliesTo(kind) && bytes.HasPrefix(data, s.pattern) {
			return s.name
		}
	}
	for i := 0; i < len(data); i++ {
		bucket := idx.byFirst[data[i]]
		if len(bucket) == 0 {
			continue
		}
		rest := data[i:]
		for _, s := range bucket {
			if s.appliesTo(kind) && bytes.HasPrefix(rest, s.pattern) {
				return s.name
			}
		}
	}
	return ""
}

func (s signature) appliesTo(kind Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}
