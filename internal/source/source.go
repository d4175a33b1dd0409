package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxSize caps the number of bytes read from any location.
const MaxSize = 100 * 1024 * 1024

// S3Options configures access to s3:// locations.
type S3Options struct {
	Region   string
	Endpoint string // MinIO or other S3-compatible endpoint
}

// ObjectGetter is the subset of the S3 client used by Fetcher.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher loads spreadsheet bytes from a local path, an http(s) URL or an
// s3://bucket/key location.
type Fetcher struct {
	client *http.Client
	s3opts S3Options
	s3     ObjectGetter
}

// NewFetcher creates a Fetcher. The S3 client is created on first use.
func NewFetcher(timeout time.Duration, s3opts S3Options) *Fetcher {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		s3opts: s3opts,
	}
}

// WithS3Client sets the client used for s3:// locations.
func (f *Fetcher) WithS3Client(c ObjectGetter) *Fetcher {
	f.s3 = c
	return f
}

// Fetch returns the base name and content of location.
func (f *Fetcher) Fetch(ctx context.Context, location string) (string, []byte, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return f.fetchURL(ctx, location)
	case strings.HasPrefix(location, "s3://"):
		return f.fetchS3(ctx, location)
	default:
		return fetchFile(location)
	}
}

func fetchFile(p string) (string, []byte, error) {
	fh, err := os.Open(p)
	if err != nil {
		return "", nil, fmt.Errorf("opening %s: %w", p, err)
	}
	defer fh.Close()

	data, err := readLimited(fh)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return filepath.Base(p), data, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("download of %s failed with status %d", rawURL, resp.StatusCode)
	}

	data, err := readLimited(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	name := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	return name, data, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, location string) (string, []byte, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return "", nil, err
	}

	client, err := f.s3Client(ctx)
	if err != nil {
		return "", nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", nil, fmt.Errorf("getting s3 object %s: %w", location, err)
	}
	defer out.Body.Close()

	data, err := readLimited(out.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading s3 object %s: %w", location, err)
	}
	return path.Base(key), data, nil
}

func (f *Fetcher) s3Client(ctx context.Context) (ObjectGetter, error) {
	if f.s3 != nil {
		return f.s3, nil
	}

	region := f.s3opts.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if f.s3opts.Endpoint != "" {
		endpoint := f.s3opts.Endpoint
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}
	f.s3 = s3.NewFromConfig(awsCfg, opts...)
	return f.s3, nil
}

// ParseS3Location splits s3://bucket/key into its parts.
func ParseS3Location(location string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(location, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}
	return bucket, key, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("file exceeds %d bytes", MaxSize)
	}
	return data, nil
}
