package blob

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

var (
	// ErrCredentials marks failures an operator fixes in their environment or
	// IAM configuration, not by retrying.
	ErrCredentials = errors.New("credentials missing or rejected")

	// ErrBucketAccess marks a bucket that does not exist or cannot be listed.
	ErrBucketAccess = errors.New("bucket not found or not accessible")
)

// ClassifyError tags AWS API errors with a sentinel so callers can
// distinguish credential and bucket-level failures from transient
// per-object ones via errors.Is.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.ErrorCode() {
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "TokenRefreshRequired", "MissingAuthenticationToken":
		return fmt.Errorf("%w: %w", ErrCredentials, err)
	case "NoSuchBucket", "AccessDenied", "AllAccessDisabled", "PermanentRedirect":
		return fmt.Errorf("%w: %w", ErrBucketAccess, err)
	}
	return err
}
