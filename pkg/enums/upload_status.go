package enums

import "fmt"

// UploadStatus tracks an upload through its lifecycle.
type UploadStatus string

const (
	UploadStatusRequested UploadStatus = "REQUESTED"
	UploadStatusUploaded  UploadStatus = "UPLOADED"
	UploadStatusInfected  UploadStatus = "INFECTED"
	UploadStatusDeleted   UploadStatus = "DELETED"
)

var validUploadStatuses = []UploadStatus{
	UploadStatusRequested,
	UploadStatusUploaded,
	UploadStatusInfected,
	UploadStatusDeleted,
}

// String returns the literal string for the status.
func (s UploadStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s UploadStatus) IsValid() bool {
	for _, candidate := range validUploadStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseUploadStatus converts raw input into an UploadStatus.
func ParseUploadStatus(value string) (UploadStatus, error) {
	for _, candidate := range validUploadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upload status %q", value)
}
