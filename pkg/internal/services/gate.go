package services

import (
	"errors"
	"fmt"
)

type RejectionKind string

const (
	RejectFileTooLarge        RejectionKind = "file_too_large"
	RejectUnsupportedFileType RejectionKind = "unsupported_file_type"
	RejectTicketNotFound      RejectionKind = "ticket_not_found"
	RejectFileRejected        RejectionKind = "file_rejected"
)

// UploadRejection is an expected, client-facing refusal of an upload.
// Anything else the pipeline returns is an unexpected server error.
type UploadRejection struct {
	Kind    RejectionKind
	Message string
}

func (e *UploadRejection) Error() string {
	return e.Message
}

func FileTooLarge(maxFileSizeMB int64) *UploadRejection {
	return &UploadRejection{
		Kind:    RejectFileTooLarge,
		Message: fmt.Sprintf("file is too large, maximum allowed size is %d MB", maxFileSizeMB),
	}
}

func UnsupportedFileType(mimetype string) *UploadRejection {
	return &UploadRejection{
		Kind:    RejectUnsupportedFileType,
		Message: fmt.Sprintf("file type %s is not allowed", mimetype),
	}
}

func TicketNotFound() *UploadRejection {
	return &UploadRejection{Kind: RejectTicketNotFound, Message: "ticket not found"}
}

func FileRejected(reason string) *UploadRejection {
	return &UploadRejection{
		Kind:    RejectFileRejected,
		Message: fmt.Sprintf("file was rejected by the security scan: %s", reason),
	}
}

// AsRejection unwraps err into an UploadRejection when it is one.
func AsRejection(err error) (*UploadRejection, bool) {
	var rejection *UploadRejection
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

// IncomingFile describes one uploaded file for the length of a request.
type IncomingFile struct {
	OriginalName     string
	DeclaredMimeType string
	SizeBytes        int64
	StoredPath       string
}

// CheckIncoming applies the size and type constraints of policy before any
// byte of the file is stored.
func CheckIncoming(policy UploadPolicy, file IncomingFile) error {
	if file.SizeBytes > policy.MaxFileSizeBytes {
		return FileTooLarge(policy.MaxFileSizeMB())
	}
	if !policy.AllowsMimeType(file.DeclaredMimeType) {
		return UnsupportedFileType(NormalizeMimeType(file.DeclaredMimeType))
	}
	return nil
}
