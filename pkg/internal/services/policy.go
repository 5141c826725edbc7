package services

import (
	"context"
	"mime"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Settings keys read by LoadUploadPolicy.
const (
	SettingMaxFileSize       = "maxFileSize"
	SettingAllowedFileTypes  = "allowedFileTypes"
	SettingSanitizeNames     = "fileSanitizeNames"
	SettingScanEnabled       = "fileScanEnabled"
	SettingScanMagicBytes    = "fileScanMagicBytes"
	SettingScanVirus         = "fileScanVirus"
	SettingQuarantineEnabled = "fileQuarantineEnabled"
	SettingAutoQuarantine    = "fileAutoQuarantine"
)

const (
	DefaultMaxFileSizeMB = 50
	bytesPerMB           = 1024 * 1024
)

var DefaultAllowedFileTypes = []string{"jpg", "png", "pdf", "txt", "doc", "docx"}

// ExtensionMimeTypes maps a lower-case extension without dot to the
// canonical MIME strings a browser may declare for it.
var ExtensionMimeTypes = map[string][]string{
	"jpg":  {"image/jpeg", "image/jpg", "image/pjpeg"},
	"jpeg": {"image/jpeg", "image/jpg", "image/pjpeg"},
	"png":  {"image/png"},
	"gif":  {"image/gif"},
	"webp": {"image/webp"},
	"bmp":  {"image/bmp", "image/x-ms-bmp"},
	"svg":  {"image/svg+xml"},
	"pdf":  {"application/pdf"},
	"doc":  {"application/msword"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	"xls":  {"application/vnd.ms-excel"},
	"xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	"ppt":  {"application/vnd.ms-powerpoint"},
	"pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation"},
	"txt":  {"text/plain"},
	"csv":  {"text/csv", "application/csv"},
	"html": {"text/html"},
	"htm":  {"text/html"},
	"xml":  {"application/xml", "text/xml"},
	"json": {"application/json"},
	"zip":  {"application/zip", "application/x-zip-compressed"},
	"rar":  {"application/vnd.rar", "application/x-rar-compressed"},
	"7z":   {"application/x-7z-compressed"},
	"gz":   {"application/gzip", "application/x-gzip"},
}

// UploadPolicy is built for every upload request and handed to the pipeline
// explicitly.
type UploadPolicy struct {
	MaxFileSizeBytes  int64    `json:"max_file_size_bytes"`
	AllowedExtensions []string `json:"allowed_extensions"`
	AllowedMimeTypes  []string `json:"allowed_mime_types"`

	SanitizeFileNames bool `json:"sanitize_file_names"`

	ScanEnabled    bool `json:"scan_enabled"`
	ScanMagicBytes bool `json:"scan_magic_bytes"`
	ScanVirus      bool `json:"scan_virus"`

	QuarantineEnabled           bool `json:"quarantine_enabled"`
	AutoQuarantineOnScanFailure bool `json:"auto_quarantine_on_scan_failure"`
}

// NewUploadPolicy returns a policy with every field at its default.
func NewUploadPolicy() UploadPolicy {
	return UploadPolicy{
		MaxFileSizeBytes:            DefaultMaxFileSizeMB * bytesPerMB,
		SanitizeFileNames:           true,
		ScanEnabled:                 false,
		ScanMagicBytes:              true,
		ScanVirus:                   false,
		QuarantineEnabled:           true,
		AutoQuarantineOnScanFailure: true,
	}.WithExtensions(DefaultAllowedFileTypes)
}

// WithExtensions replaces the allowed extensions and recomputes the allowed
// MIME types from them.
func (v UploadPolicy) WithExtensions(extensions []string) UploadPolicy {
	v.AllowedExtensions = NormalizeExtensions(extensions)
	v.AllowedMimeTypes = MimeTypesForExtensions(v.AllowedExtensions)
	return v
}

func (v UploadPolicy) MaxFileSizeMB() int64 {
	return v.MaxFileSizeBytes / bytesPerMB
}

func (v UploadPolicy) AllowsMimeType(mimetype string) bool {
	return lo.Contains(v.AllowedMimeTypes, NormalizeMimeType(mimetype))
}

func NormalizeExtensions(extensions []string) []string {
	out := lo.FilterMap(extensions, func(item string, _ int) (string, bool) {
		ext := strings.ToLower(strings.TrimSpace(item))
		ext = strings.TrimLeft(ext, ".")
		return ext, len(ext) > 0
	})
	return lo.Uniq(out)
}

func MimeTypesForExtensions(extensions []string) []string {
	var out []string
	for _, ext := range extensions {
		if known, ok := ExtensionMimeTypes[ext]; ok {
			out = append(out, known...)
		} else if guessed := mime.TypeByExtension("." + ext); len(guessed) > 0 {
			out = append(out, NormalizeMimeType(guessed))
		}
	}
	out = lo.Uniq(out)
	sort.Strings(out)
	return out
}

// NormalizeMimeType drops parameters and lower-cases the media type.
func NormalizeMimeType(mimetype string) string {
	if idx := strings.Index(mimetype, ";"); idx != -1 {
		mimetype = mimetype[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimetype))
}

// LoadUploadPolicy reads every policy field from the settings store. Missing
// or malformed values fall back to their defaults; a failing store is logged
// and yields the default for that key.
func LoadUploadPolicy(ctx context.Context, settings SettingsReader) UploadPolicy {
	policy := NewUploadPolicy()

	maxSize := readSetting(ctx, settings, SettingMaxFileSize, int64(DefaultMaxFileSizeMB))
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSizeMB
	}
	policy.MaxFileSizeBytes = maxSize * bytesPerMB

	extensions := readSetting(ctx, settings, SettingAllowedFileTypes, DefaultAllowedFileTypes)
	if len(NormalizeExtensions(extensions)) == 0 {
		extensions = DefaultAllowedFileTypes
	}
	policy = policy.WithExtensions(extensions)

	policy.SanitizeFileNames = readSetting(ctx, settings, SettingSanitizeNames, policy.SanitizeFileNames)
	policy.ScanEnabled = readSetting(ctx, settings, SettingScanEnabled, policy.ScanEnabled)
	policy.ScanMagicBytes = readSetting(ctx, settings, SettingScanMagicBytes, policy.ScanMagicBytes)
	policy.ScanVirus = readSetting(ctx, settings, SettingScanVirus, policy.ScanVirus)
	policy.QuarantineEnabled = readSetting(ctx, settings, SettingQuarantineEnabled, policy.QuarantineEnabled)
	policy.AutoQuarantineOnScanFailure = readSetting(ctx, settings, SettingAutoQuarantine, policy.AutoQuarantineOnScanFailure)

	return policy
}

func readSetting[T any](ctx context.Context, settings SettingsReader, key string, fallback T) T {
	var out T
	found, err := settings.GetSetting(ctx, key, &out)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Unable to read setting, using the default value...")
		return fallback
	} else if !found {
		return fallback
	}
	return out
}
