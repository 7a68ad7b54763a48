package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Reason string

const (
	ReasonEmptyFile          Reason = "EMPTY_FILE"
	ReasonFileTooLarge       Reason = "FILE_TOO_LARGE"
	ReasonUnsupportedType    Reason = "UNSUPPORTED_TYPE"
	ReasonTypeMismatch       Reason = "TYPE_MISMATCH"
	ReasonMalwareDetected    Reason = "MALWARE_DETECTED"
	ReasonMalformedStructure Reason = "MALFORMED_STRUCTURE"
	ReasonSuspiciousEntropy  Reason = "SUSPICIOUS_ENTROPY"
)

type CheckName string

const (
	CheckSize      CheckName = "size"
	CheckType      CheckName = "type"
	CheckSignature CheckName = "signature"
	CheckStructure CheckName = "structure"
	CheckEntropy   CheckName = "entropy"
)

type Check struct {
	Name   CheckName `json:"name"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
}

// Result is the outcome of Validate. Checks lists, in order, only the checks
// that actually ran.
type Result struct {
	OK     bool   `json:"ok"`
	Reason Reason `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
	Kind   Kind   `json:"kind,omitempty"`
	MIME   string `json:"mime,omitempty"`
	// Entropy is the measured value in bits per byte, when check 5 ran.
	Entropy float64 `json:"entropy,omitempty"`
	Checks  []Check `json:"checks"`
}

// Kind is the family a file was accepted as.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
	KindText Kind = "text"
	KindPNG  Kind = "png"
	KindJPEG Kind = "jpeg"
	KindTIFF Kind = "tiff"
)

const DefaultMaxBytes = 10 << 20

var extensionKinds = map[string]Kind{
	".pdf":  KindPDF,
	".docx": KindDOCX,
	".txt":  KindText,
	".md":   KindText,
	".png":  KindPNG,
	".jpg":  KindJPEG,
	".jpeg": KindJPEG,
	".tif":  KindTIFF,
	".tiff": KindTIFF,
}

var kindMIME = map[Kind]string{
	KindPDF:  "application/pdf",
	KindDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	KindText: "text/plain",
	KindPNG:  "image/png",
	KindJPEG: "image/jpeg",
	KindTIFF: "image/tiff",
}

type Config struct {
	MaxBytes int64
	// Entropy ceilings in bits per byte. Zero disables the check for that kind.
	// The container ceiling applies to a PDF without its stream bodies and to
	// the inflated DOCX document part.
	TextEntropyCeiling      float64
	ContainerEntropyCeiling float64
	EntropyMinBytes         int
	MaxZipEntries           int
	MaxZipRatio             float64
}

func DefaultConfig() Config {
	return Config{
		MaxBytes:                DefaultMaxBytes,
		TextEntropyCeiling:      6.0,
		ContainerEntropyCeiling: 7.2,
		EntropyMinBytes:         1024,
		MaxZipEntries:           2000,
		MaxZipRatio:             100,
	}
}

type Validator struct {
	cfg   Config
	index signatureIndex
}

func New(cfg Config) *Validator {
	def := DefaultConfig()
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.EntropyMinBytes <= 0 {
		cfg.EntropyMinBytes = def.EntropyMinBytes
	}
	if cfg.MaxZipEntries <= 0 {
		cfg.MaxZipEntries = def.MaxZipEntries
	}
	if cfg.MaxZipRatio <= 0 {
		cfg.MaxZipRatio = def.MaxZipRatio
	}
	return &Validator{cfg: cfg, index: buildSignatureIndex(defaultSignatures)}
}

// Validate runs the checks in order and stops at the first failure. It does
// no I/O and is safe for concurrent use.
func (v *Validator) Validate(data []byte, declaredFilename string) Result {
	res := Result{Checks: make([]Check, 0, 5)}

	// 1. size
	if len(data) == 0 {
		return res.fail(CheckSize, ReasonEmptyFile, "file is empty")
	}
	if int64(len(data)) > v.cfg.MaxBytes {
		return res.fail(CheckSize, ReasonFileTooLarge, "file exceeds maximum size")
	}
	res.pass(CheckSize)

	// 2. declared type vs content
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(declaredFilename)))
	kind, ok := extensionKinds[ext]
	if !ok {
		return res.fail(CheckType, ReasonUnsupportedType, "unsupported extension "+ext)
	}
	sniffed := mimetype.Detect(data)
	res.MIME = sniffed.String()
	executable := isExecutable(sniffed)
	switch {
	case executable:
		// Executable content is the signature scan's call, not a type mismatch.
		res.Checks = append(res.Checks, Check{Name: CheckType, Status: "deferred", Detail: "content is " + sniffed.String()})
	case !matchesKind(sniffed, kind):
		return res.fail(CheckType, ReasonTypeMismatch, "declared "+string(kind)+" but content is "+sniffed.String())
	default:
		res.pass(CheckType)
	}
	res.Kind = kind

	// 3. signatures
	if hit := v.index.scan(data, kind); hit != "" {
		return res.fail(CheckSignature, ReasonMalwareDetected, hit)
	}
	if executable {
		return res.fail(CheckSignature, ReasonMalwareDetected, "executable:"+sniffed.String())
	}
	res.pass(CheckSignature)

	// 4. structure
	if err := checkStructure(kind, data, v.cfg); err != nil {
		return res.fail(CheckStructure, ReasonMalformedStructure, err.Error())
	}
	res.pass(CheckStructure)

	// 5. entropy
	if ceiling := v.entropyCeiling(kind); ceiling > 0 {
		sample, err := entropySample(kind, data, v.cfg)
		if err != nil {
			return res.fail(CheckEntropy, ReasonMalformedStructure, err.Error())
		}
		if len(sample) >= v.cfg.EntropyMinBytes {
			res.Entropy = ShannonEntropy(sample)
			if res.Entropy > ceiling {
				return res.fail(CheckEntropy, ReasonSuspiciousEntropy, fmt.Sprintf("entropy %.3f above %.2f", res.Entropy, ceiling))
			}
		}
	}
	res.pass(CheckEntropy)

	res.OK = true
	return res
}

// Images are already compressed, so entropy says nothing useful about them.
func (v *Validator) entropyCeiling(kind Kind) float64 {
	switch kind {
	case KindText:
		return v.cfg.TextEntropyCeiling
	case KindPDF, KindDOCX:
		return v.cfg.ContainerEntropyCeiling
	default:
		return 0
	}
}

var executableMIMEs = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-elf",
	"application/x-mach-binary",
	"application/x-msdownload",
	"application/x-java-applet",
	"application/wasm",
}

func isExecutable(m *mimetype.MIME) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		for _, e := range executableMIMEs {
			if cur.Is(e) {
				return true
			}
		}
	}
	return false
}

func matchesKind(m *mimetype.MIME, kind Kind) bool {
	want := kindMIME[kind]
	for cur := m; cur != nil; cur = cur.Parent() {
		if cur.Is(want) {
			return true
		}
	}
	return false
}

func (r *Result) pass(name CheckName) {
	r.Checks = append(r.Checks, Check{Name: name, Status: "pass"})
}

func (r Result) fail(name CheckName, reason Reason, detail string) Result {
	r.Checks = append(r.Checks, Check{Name: name, Status: "fail", Detail: detail})
	r.OK = false
	r.Reason = reason
	r.Detail = detail
	return r
}

// MIMEFor returns the canonical content type for an accepted kind.
func MIMEFor(kind Kind) string {
	return kindMIME[kind]
}
