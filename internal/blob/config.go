package blob

import "errors"

// S3Config configures the S3-backed blob client. AccessKey/SecretKey are
// optional; when empty the SDK's ambient credential chain is used
// (environment, shared config, instance role).
type S3Config struct {
	BucketName string
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
}

func (c *S3Config) Validate() error {
	if c.BucketName == "" {
		return errors.New("bucket name is required")
	}
	return nil
}
