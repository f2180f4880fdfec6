// Package archive streams trip zip archives out of S3 and extracts their CSV
// members into a local directory without writing the compressed data to disk.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/bikeshare-etl/internal/observability"
)

// ChunkSize is the read size used when pulling an object body into memory.
const ChunkSize = 1 << 20

// ErrOutputDirExists is returned when the extraction directory is already
// present. Extraction never merges into a previous run's output.
var ErrOutputDirExists = errors.New("output directory already exists")

// Config selects the archives to stream and where their CSVs land.
type Config struct {
	Bucket string
	Prefix string
	Dir    string
}

// Result summarizes one streaming pass.
type Result struct {
	Archives int
	Files    int
	Bytes    int64
	Dir      string
}

// Streamer downloads every zip archive in a bucket and extracts its top-level
// CSV files.
type Streamer struct {
	s3      s3iface.S3API
	cfg     Config
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStreamer creates a Streamer over the given S3 client.
func NewStreamer(api s3iface.S3API, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Streamer {
	return &Streamer{
		s3:      api,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// NewS3Client returns an S3 client that signs nothing, for public buckets.
func NewS3Client(region string) (s3iface.S3API, error) {
	sess, err := session.NewSession(aws.NewConfig().
		WithRegion(region).
		WithCredentials(credentials.AnonymousCredentials))
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return s3.New(sess), nil
}

// Stream lists the bucket, downloads each .zip object into memory and writes
// its CSV members to the output directory. Any failure aborts the pass; files
// already written are left in place.
func (s *Streamer) Stream(ctx context.Context) (Result, error) {
	res := Result{Dir: s.cfg.Dir}

	if err := prepareDir(s.cfg.Dir); err != nil {
		return res, err
	}

	keys, err := s.listArchives(ctx)
	if err != nil {
		return res, err
	}
	s.logger.Info("archives listed", "bucket", s.cfg.Bucket, "prefix", s.cfg.Prefix, "count", len(keys))

	for _, key := range keys {
		data, err := s.download(ctx, key)
		if err != nil {
			return res, err
		}
		res.Archives++
		res.Bytes += int64(len(data))
		s.metrics.ArchivesStreamed.Inc()

		files, err := extract(data, s.cfg.Dir)
		if err != nil {
			return res, fmt.Errorf("extract %s: %w", key, err)
		}
		for _, f := range files {
			s.logger.Debug("csv extracted", "key", key, "entry", f.entry, "file", f.name)
		}
		res.Files += len(files)
		s.metrics.FilesExtracted.Add(float64(len(files)))
		s.logger.Info("archive extracted", "key", key, "bytes", len(data), "files", len(files))
	}

	return res, nil
}

func prepareDir(dir string) error {
	_, err := os.Stat(dir)
	if err == nil {
		return fmt.Errorf("%w: %s; remove it manually before re-running", ErrOutputDirExists, dir)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}

func (s *Streamer) listArchives(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.cfg.Bucket)}
	if s.cfg.Prefix != "" {
		input.Prefix = aws.String(s.cfg.Prefix)
	}

	var keys []string
	err := s.s3.ListObjectsV2PagesWithContext(ctx, input, func(out *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range out.Contents {
			key := aws.StringValue(obj.Key)
			if strings.HasSuffix(strings.ToLower(key), ".zip") {
				keys = append(keys, key)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list bucket %s: %w", s.cfg.Bucket, err)
	}
	return keys, nil
}

func (s *Streamer) download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	total := aws.Int64Value(out.ContentLength)
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	p := newProgress(key, total, s.clock, s.logger, s.metrics.ArchiveBytes)
	chunk := make([]byte, ChunkSize)
	for {
		n, err := out.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			p.add(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
	}
	p.done()

	return buf.Bytes(), nil
}

type extracted struct {
	entry string
	name  string
}

func extract(data []byte, dir string) ([]extracted, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var files []extracted
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := extractable(f.Name)
		if !ok {
			continue
		}
		written, err := writeEntry(f, dir, name)
		if err != nil {
			return files, err
		}
		files = append(files, extracted{entry: f.Name, name: written})
	}
	return files, nil
}

func writeEntry(f *zip.File, dir, name string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, written, err := createUnique(dir, name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return "", fmt.Errorf("write %s: %w", written, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", written, err)
	}
	return written, nil
}
