package artifactstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// URI parsing errors.
var (
	ErrInvalidURI     = errors.New("invalid URI")
	ErrUnsupportedURI = errors.New("unsupported URI scheme")
	ErrMissingBucket  = errors.New("missing bucket name")
	ErrMissingKey     = errors.New("missing object key")
)

// Location is a parsed s3://bucket/key destination.
type Location struct {
	Bucket string
	Key    string
}

// String returns the location in canonical URI form.
func (l Location) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// ParseURI parses an s3://bucket/key URI naming a single object.
//
// A key ending in "/" is a prefix; WithBase appends a file name to it.
func ParseURI(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "s3" {
		if u.Scheme == "" {
			return Location{}, fmt.Errorf("%w: %q (expected s3://bucket/key)", ErrInvalidURI, uri)
		}
		return Location{}, fmt.Errorf("%w: %s", ErrUnsupportedURI, u.Scheme)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("%w: %s", ErrMissingBucket, uri)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return Location{}, fmt.Errorf("%w: %s", ErrMissingKey, uri)
	}
	return Location{Bucket: u.Host, Key: key}, nil
}

// IsPrefix reports whether the key names a prefix rather than an object.
func (l Location) IsPrefix() bool {
	return strings.HasSuffix(l.Key, "/")
}

// WithBase returns l with name appended when l is a prefix.
func (l Location) WithBase(name string) Location {
	if l.IsPrefix() {
		l.Key += name
	}
	return l
}
