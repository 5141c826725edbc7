package services

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

const sniffWindow = 4096

const (
	mimeOleStorage = "application/x-ole-storage"
	mimeZip        = "application/zip"
	mimeOctet      = "application/octet-stream"
	mimeTextPlain  = "text/plain"
	mimeDosExe     = "application/x-msdownload"
)

type magicSignature struct {
	Offset    int
	Signature []byte
	MimeType  string
}

// magicSignatures is checked in order, so longer and more specific
// signatures come before shorter ones sharing a prefix.
var magicSignatures = []magicSignature{
	{0, []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
	{0, []byte("GIF87a"), "image/gif"},
	{0, []byte("GIF89a"), "image/gif"},
	{8, []byte("WEBP"), "image/webp"},
	{0, []byte("%PDF-"), "application/pdf"},
	{0, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, mimeOleStorage},
	{0, []byte{'P', 'K', 0x03, 0x04}, mimeZip},
	{0, []byte{'P', 'K', 0x05, 0x06}, mimeZip},
	{0, []byte{'P', 'K', 0x07, 0x08}, mimeZip},
	{0, []byte{'R', 'a', 'r', '!', 0x1A, 0x07}, "application/vnd.rar"},
	{0, []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}, "application/x-7z-compressed"},
	{0, []byte{0x1F, 0x8B}, "application/gzip"},
	{0, []byte{0x7F, 'E', 'L', 'F'}, "application/x-executable"},
	{0, []byte{0xFE, 0xED, 0xFA, 0xCE}, "application/x-mach-binary"},
	{0, []byte{0xFE, 0xED, 0xFA, 0xCF}, "application/x-mach-binary"},
	{0, []byte{0xCE, 0xFA, 0xED, 0xFE}, "application/x-mach-binary"},
	{0, []byte{0xCF, 0xFA, 0xED, 0xFE}, "application/x-mach-binary"},
	{0, []byte{0xCA, 0xFE, 0xBA, 0xBE}, "application/java-vm"},
	{0, []byte("MZ"), mimeDosExe},
	{0, []byte("#!"), "application/x-sh"},
	{0, []byte("BM"), "image/bmp"},
}

var executableMimeTypes = []string{
	mimeDosExe,
	"application/x-executable",
	"application/x-mach-binary",
	"application/java-vm",
	"application/x-sh",
}

// activeMimeTypes may carry script and only match their own declaration.
var activeMimeTypes = []string{
	"text/html",
	"image/svg+xml",
	"application/xhtml+xml",
}

// mimeFamilies lists what else a declared type may be detected as.
var mimeFamilies = map[string][]string{
	"image/svg+xml":         {"application/xml"},
	"application/xhtml+xml": {"text/html", "application/xml"},
}

// mimeAliases folds declared and detected types into one comparable form.
// Office documents are compared by their container format, since the
// container is all the leading bytes reveal.
var mimeAliases = map[string]string{
	"image/jpg":      "image/jpeg",
	"image/pjpeg":    "image/jpeg",
	"image/x-ms-bmp": "image/bmp",
	"text/xml":       "application/xml",

	"application/csv":              "text/csv",
	"application/x-zip-compressed": mimeZip,
	"application/x-rar-compressed": "application/vnd.rar",
	"application/x-gzip":           "application/gzip",

	"application/msword":            mimeOleStorage,
	"application/vnd.ms-excel":      mimeOleStorage,
	"application/vnd.ms-powerpoint": mimeOleStorage,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   mimeZip,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         mimeZip,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": mimeZip,

	"application/vnd.microsoft.portable-executable": mimeDosExe,
	"application/x-msdos-program":                   mimeDosExe,

	"application/x-elf":         "application/x-executable",
	"application/x-sharedlib":   "application/x-executable",
	"application/x-shellscript": "application/x-sh",
	"text/x-shellscript":        "application/x-sh",
	"application/x-java-applet": "application/java-vm",
}

// ContentValidationResult is the verdict of the content sniffer. Error is
// set both for a blocking mismatch and for a non-blocking advisory.
type ContentValidationResult struct {
	Valid            bool    `json:"valid"`
	DetectedMimeType *string `json:"detected_mime_type"`
	Error            *string `json:"error"`
}

// SniffFile reads the leading bytes of the stored file and checks them
// against the declared type. The returned error is an I/O failure, never a
// mismatch.
func SniffFile(path, declaredMimeType string) (ContentValidationResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return ContentValidationResult{}, fmt.Errorf("unable to open file for sniffing: %v", err)
	}
	defer file.Close()

	header := make([]byte, sniffWindow)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return ContentValidationResult{}, fmt.Errorf("unable to read file header: %v", err)
	}

	return SniffContent(header[:n], declaredMimeType), nil
}

func SniffContent(header []byte, declaredMimeType string) ContentValidationResult {
	declared := NormalizeMimeType(declaredMimeType)

	detected := DetectMimeType(header)
	if len(detected) == 0 {
		return ContentValidationResult{
			Valid: true,
			Error: lo.ToPtr("unable to determine the file type from its content"),
		}
	}

	result := ContentValidationResult{Valid: true, DetectedMimeType: lo.ToPtr(detected)}
	if !IsCompatibleMimeType(declared, detected) {
		result.Valid = false
		result.Error = lo.ToPtr(fmt.Sprintf("file content looks like %s but was declared as %s", detected, declared))
	}
	return result
}

// DetectMimeType identifies header by its magic bytes first and falls back
// to the mimetype detector, which covers the text formats. It returns an
// empty string when nothing matches.
func DetectMimeType(header []byte) string {
	for _, sig := range magicSignatures {
		end := sig.Offset + len(sig.Signature)
		if len(header) < end {
			continue
		}
		if !bytes.Equal(header[sig.Offset:end], sig.Signature) {
			continue
		}
		if sig.MimeType == "image/webp" && !bytes.HasPrefix(header, []byte("RIFF")) {
			continue
		}
		if sig.MimeType == mimeDosExe && !isPortableExecutable(header) {
			continue
		}
		if sig.MimeType == "application/x-sh" && !isInterpreterLine(header) {
			continue
		}
		// The two-byte bitmap magic is only trusted with zeroed reserved fields.
		if sig.MimeType == "image/bmp" && (len(header) < 14 || !bytes.Equal(header[6:10], []byte{0, 0, 0, 0})) {
			continue
		}
		return sig.MimeType
	}

	if len(header) == 0 {
		return ""
	}

	detected := NormalizeMimeType(mimetype.Detect(header).String())
	if canonicalMimeType(detected) == mimeDosExe && !isPortableExecutable(header) {
		// mimetype trusts the bare MZ prefix.
		detected = mimeOctet
		if looksLikeText(header) {
			detected = mimeTextPlain
		}
	}
	if detected == mimeOctet {
		return ""
	}
	return detected
}

// isPortableExecutable follows e_lfanew from the DOS header to the PE
// signature. A PE header past the sniff window is not recognised.
func isPortableExecutable(header []byte) bool {
	if len(header) < 0x40 {
		return false
	}
	offset := uint64(binary.LittleEndian.Uint32(header[0x3C:0x40]))
	if offset < 0x40 || offset+4 > uint64(len(header)) {
		return false
	}
	return bytes.Equal(header[offset:offset+4], []byte("PE\x00\x00"))
}

// isInterpreterLine accepts "#!/path" and "#! /path".
func isInterpreterLine(header []byte) bool {
	rest := bytes.TrimPrefix(header, []byte("#!"))
	rest = bytes.TrimPrefix(rest, []byte(" "))
	return bytes.HasPrefix(rest, []byte("/"))
}

func looksLikeText(header []byte) bool {
	// A rune cut by the end of the sniff window is still text.
	for i := len(header) - 1; i >= 0 && i >= len(header)-utf8.UTFMax; i-- {
		if utf8.RuneStart(header[i]) {
			if !utf8.FullRune(header[i:]) {
				header = header[:i]
			}
			break
		}
	}
	if !utf8.Valid(header) {
		return false
	}
	return bytes.IndexFunc(header, func(r rune) bool {
		return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
	}) == -1
}

func canonicalMimeType(mt string) string {
	if alias, ok := mimeAliases[mt]; ok {
		return alias
	}
	return mt
}

func isTextMimeType(mt string) bool {
	switch mt {
	case "application/json", "application/xml":
		return true
	}
	return strings.HasPrefix(mt, "text/")
}

func isActiveMimeType(mt string) bool {
	return lo.Contains(activeMimeTypes, canonicalMimeType(mt))
}

func isExecutableMimeType(mt string) bool {
	return lo.Contains(executableMimeTypes, canonicalMimeType(mt))
}

// IsCompatibleMimeType reports whether content detected as detected may
// legitimately be declared as declared.
func IsCompatibleMimeType(declared, detected string) bool {
	declared = canonicalMimeType(declared)
	detected = canonicalMimeType(detected)

	if declared == detected || lo.Contains(mimeFamilies[declared], detected) {
		return true
	}
	if isExecutableMimeType(detected) || isExecutableMimeType(declared) {
		return false
	}
	if isActiveMimeType(detected) || isActiveMimeType(declared) {
		return false
	}
	if declared == mimeOctet {
		return true
	}
	if !isTextMimeType(declared) || !isTextMimeType(detected) {
		return false
	}
	// Plain text is the detector's answer for csv and most loose formats,
	// and a plain text declaration covers structured text.
	return detected == mimeTextPlain || declared == mimeTextPlain
}
