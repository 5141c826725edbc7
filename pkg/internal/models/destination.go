package models

const (
	DestinationTypeLocal = "local"
	DestinationTypeS3    = "s3"
)

type BaseDestination struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// LocalDestination is a directory on the service host. Both the uploads root
// and the quarantine root are local destinations.
type LocalDestination struct {
	BaseDestination

	Path string `json:"path"`
}

// S3Destination is an S3-compatible bucket that clean attachments get
// replicated to.
type S3Destination struct {
	BaseDestination

	Path      string `json:"path"`
	Bucket    string `json:"bucket"`
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	EnableSSL bool   `json:"enable_ssl"`
}
