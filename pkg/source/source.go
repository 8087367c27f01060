// Package source opens event log inputs by location: a local path, "-" for
// standard input, or an s3://bucket/key object.
package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	pmerrors "github.com/logflow/pmlens/pkg/errors"
)

// Scheme identifies where an input lives.
type Scheme string

const (
	SchemeFile  Scheme = "file"
	SchemeStdin Scheme = "stdin"
	SchemeS3    Scheme = "s3"
)

// Location is a parsed input location.
type Location struct {
	Scheme Scheme
	Path   string // local path
	Bucket string // s3 bucket
	Key    string // s3 object key
	Raw    string
}

// Name returns the base name used for format detection.
func (l Location) Name() string {
	switch l.Scheme {
	case SchemeS3:
		return path.Base(l.Key)
	case SchemeStdin:
		return "stdin"
	default:
		return l.Path
	}
}

// String returns the location as given.
func (l Location) String() string {
	return l.Raw
}

// Parse parses an input location.
func Parse(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return Location{}, pmerrors.New(pmerrors.CodeSourceNotFound, "empty input location")
	case raw == "-":
		return Location{Scheme: SchemeStdin, Raw: raw}, nil
	case strings.HasPrefix(raw, "s3://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Location{}, pmerrors.Wrap(err, pmerrors.CodeSourceNotFound, "invalid s3 location").WithContext("source", raw)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, pmerrors.New(pmerrors.CodeSourceNotFound, "s3 location needs bucket and key").WithContext("source", raw)
		}
		return Location{Scheme: SchemeS3, Bucket: u.Host, Key: key, Raw: raw}, nil
	case strings.HasPrefix(raw, "file://"):
		return Location{Scheme: SchemeFile, Path: strings.TrimPrefix(raw, "file://"), Raw: raw}, nil
	default:
		return Location{Scheme: SchemeFile, Path: raw, Raw: raw}, nil
	}
}

// Opener opens input locations. The S3 client is created on first use.
type Opener struct {
	// Stdin is read for the "-" location. Defaults to os.Stdin.
	Stdin io.Reader

	s3cfg S3Config

	mu       sync.Mutex
	s3client objectGetter
}

// NewOpener creates an opener.
func NewOpener(s3cfg S3Config) *Opener {
	return &Opener{Stdin: os.Stdin, s3cfg: s3cfg}
}

// Open opens raw for reading. The caller closes the returned reader.
func (o *Opener) Open(ctx context.Context, raw string) (io.ReadCloser, Location, error) {
	loc, err := Parse(raw)
	if err != nil {
		return nil, loc, err
	}

	switch loc.Scheme {
	case SchemeStdin:
		stdin := o.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.NopCloser(stdin), loc, nil

	case SchemeS3:
		client, err := o.s3(ctx)
		if err != nil {
			return nil, loc, err
		}
		rc, err := getObject(ctx, client, loc.Bucket, loc.Key, o.s3cfg.DownloadTimeout)
		if err != nil {
			return nil, loc, err
		}
		return rc, loc, nil

	default:
		f, err := os.Open(loc.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, loc, pmerrors.SourceNotFound(raw, err)
			}
			return nil, loc, pmerrors.Wrap(err, pmerrors.CodeSourceRead, "open input").WithContext("source", raw)
		}
		return f, loc, nil
	}
}

func (o *Opener) s3(ctx context.Context) (objectGetter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.s3client != nil {
		return o.s3client, nil
	}
	client, err := newS3Client(ctx, o.s3cfg)
	if err != nil {
		return nil, err
	}
	o.s3client = client
	return client, nil
}
