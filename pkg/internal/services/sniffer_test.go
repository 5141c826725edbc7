package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 'I', 'H', 'D', 'R'}
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	peHeader   = newPEHeader()
	elfHeader  = []byte{0x7F, 'E', 'L', 'F', 0x02, 0x01, 0x01, 0x00}
	zipHeader  = []byte{'P', 'K', 0x03, 0x04, 0x14, 0x00, 0x06, 0x00}
	oleHeader  = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00, 0x00}
	webpHeader = []byte{'R', 'I', 'F', 'F', 0x24, 0x00, 0x00, 0x00, 'W', 'E', 'B', 'P', 'V', 'P', '8', ' '}
	bmpHeader  = []byte{'B', 'M', 0x36, 0x00, 0x0C, 0x00, 0x00, 0x00, 0x00, 0x00, 0x36, 0x00, 0x00, 0x00}
)

// newPEHeader builds a DOS stub whose e_lfanew points at a PE signature.
func newPEHeader() []byte {
	header := make([]byte, 0x48)
	copy(header, "MZ")
	header[0x3C] = 0x40
	copy(header[0x40:], "PE\x00\x00")
	return header
}

func TestDetectMimeType(t *testing.T) {
	cases := []struct {
		name     string
		header   []byte
		expected string
	}{
		{"png", pngHeader, "image/png"},
		{"jpeg", jpegHeader, "image/jpeg"},
		{"gif", []byte("GIF89a\x01\x00\x01\x00"), "image/gif"},
		{"webp", webpHeader, "image/webp"},
		{"bmp", bmpHeader, "image/bmp"},
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3"), "application/pdf"},
		{"ole", oleHeader, mimeOleStorage},
		{"zip", zipHeader, mimeZip},
		{"rar", []byte{'R', 'a', 'r', '!', 0x1A, 0x07, 0x01, 0x00}, "application/vnd.rar"},
		{"7z", []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C, 0x00, 0x04}, "application/x-7z-compressed"},
		{"gzip", []byte{0x1F, 0x8B, 0x08, 0x00}, "application/gzip"},
		{"pe", peHeader, "application/x-msdownload"},
		{"elf", elfHeader, "application/x-executable"},
		{"shell", []byte("#!/bin/sh\nrm -rf /\n"), "application/x-sh"},
		{"spaced shell", []byte("#! /usr/bin/env python3\nprint(1)\n"), "application/x-sh"},
		{"text", []byte("The printer on floor 3 is on fire again.\n"), "text/plain"},
		{"json", []byte(`{"ticket": 12, "status": "open"}`), "application/json"},
		{"html", []byte("<!DOCTYPE html><html><body>hi</body></html>"), "text/html"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, DetectMimeType(c.header))
		})
	}
}

func TestDetectMimeTypeUnknown(t *testing.T) {
	assert.Empty(t, DetectMimeType(nil))
	assert.Empty(t, DetectMimeType([]byte{0x00, 0x01, 0x02, 0x03, 0xFE, 0xFD, 0x00, 0x9C}))
	// RIFF containers that are not WebP must not be reported as images.
	assert.NotEqual(t, "image/webp", DetectMimeType([]byte("XXXXXXXXWEBPVP8 ")))
}

func TestDetectMimeTypeLookalikes(t *testing.T) {
	cases := []struct {
		name   string
		header []byte
	}{
		{"initials", []byte("MZ is my initials, see attached log\n")},
		{"short dos stub", []byte("MZ\x90\x00")},
		{"hashbang prose", []byte("#!important: the VPN drops every hour\n")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.False(t, isExecutableMimeType(DetectMimeType(c.header)))
		})
	}

	// e_lfanew pointing past the header or into the DOS header itself.
	broken := newPEHeader()
	broken[0x3C] = 0xF0
	assert.NotEqual(t, "application/x-msdownload", DetectMimeType(broken))
	broken[0x3C] = 0x02
	assert.NotEqual(t, "application/x-msdownload", DetectMimeType(broken))

	assert.Equal(t, "text/plain", DetectMimeType([]byte("MZ is my initials, see attached log\n")))
}

func TestSniffContent(t *testing.T) {
	consistent := SniffContent(pngHeader, "image/png")
	assert.True(t, consistent.Valid)
	assert.Nil(t, consistent.Error)
	require.NotNil(t, consistent.DetectedMimeType)
	assert.Equal(t, "image/png", *consistent.DetectedMimeType)

	spoofed := SniffContent(peHeader, "image/png")
	assert.False(t, spoofed.Valid)
	require.NotNil(t, spoofed.Error)
	assert.Contains(t, *spoofed.Error, "application/x-msdownload")

	initials := SniffContent([]byte("MZ is my initials, see attached log\n"), "text/plain")
	assert.True(t, initials.Valid)
	assert.Nil(t, initials.Error)

	for name, content := range map[string]string{
		"html": "<html><body><script>alert(document.cookie)</script></body></html>",
		"svg":  `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`,
	} {
		result := SniffContent([]byte(content), "text/plain")
		assert.False(t, result.Valid, name)
		assert.NotNil(t, result.Error, name)
	}

	csv := SniffContent([]byte(`{"ticket": 12, "status": "open"}`), "text/csv")
	assert.False(t, csv.Valid)

	unknown := SniffContent([]byte{0x00, 0x01, 0x02, 0x03, 0xFE, 0xFD, 0x00, 0x9C}, "application/pdf")
	assert.True(t, unknown.Valid)
	assert.Nil(t, unknown.DetectedMimeType)
	assert.NotNil(t, unknown.Error)
}

func TestIsCompatibleMimeType(t *testing.T) {
	compatible := [][2]string{
		{"image/jpg", "image/jpeg"},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", mimeZip},
		{"application/msword", mimeOleStorage},
		{"application/vnd.ms-excel", mimeOleStorage},
		{"application/x-zip-compressed", mimeZip},
		{"text/csv", "text/plain"},
		{"text/plain", "application/json"},
		{"image/svg+xml", "text/xml"},
		{"image/svg+xml", "image/svg+xml"},
		{"text/html", "text/html"},
		{"application/xhtml+xml", "text/html"},
		{"text/plain", "text/xml"},
		{"application/octet-stream", "application/pdf"},
		{"application/x-msdownload", "application/vnd.microsoft.portable-executable"},
	}
	for _, pair := range compatible {
		assert.True(t, IsCompatibleMimeType(pair[0], pair[1]), "%s declared, %s detected", pair[0], pair[1])
	}

	incompatible := [][2]string{
		{"image/png", "application/x-msdownload"},
		{"image/png", "image/jpeg"},
		{"application/pdf", mimeZip},
		{"text/plain", "application/x-sh"},
		{"application/octet-stream", "application/x-executable"},
		{"application/msword", mimeZip},
		{"text/plain", "text/html"},
		{"text/plain", "image/svg+xml"},
		{"text/csv", "text/html"},
		{"text/xml", "image/svg+xml"},
		{"application/octet-stream", "text/html"},
		{"text/csv", "application/json"},
		{"application/json", "text/csv"},
	}
	for _, pair := range incompatible {
		assert.False(t, IsCompatibleMimeType(pair[0], pair[1]), "%s declared, %s detected", pair[0], pair[1])
	}
}

func TestSniffFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.png")
	require.NoError(t, os.WriteFile(path, append(elfHeader, make([]byte, 8192)...), 0o600))

	result, err := SniffFile(path, "image/png")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "application/x-executable", *result.DetectedMimeType)

	_, err = SniffFile(filepath.Join(dir, "missing.png"), "image/png")
	assert.Error(t, err)
}
