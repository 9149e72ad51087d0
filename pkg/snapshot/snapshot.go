// Package snapshot writes introspection results to stdout, a local directory
// or S3 as JSON or YAML.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-introspect/pkg/config"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// Format is a snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown snapshot format %q", s)
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type stored with S3 objects.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Encode renders result in format.
func Encode(result *models.DataSourceIntrospectionResult, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		out, err := yaml.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return out, nil
	case FormatJSON, "":
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(out, '\n'), nil
	}
	return nil, fmt.Errorf("unknown snapshot format %q", format)
}

// Key is the relative object path of a snapshot:
// <datasource>/<UTC timestamp>-<snapshot id>.<ext>
func Key(result *models.DataSourceIntrospectionResult, format Format) string {
	stamp := result.IntrospectedAt.UTC().Format("20060102T150405Z")
	return path.Join(safeSegment(result.DataSourceName), fmt.Sprintf("%s-%s.%s", stamp, result.ID, format.Extension()))
}

// safeSegment keeps data source names from escaping the key prefix.
func safeSegment(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.TrimSpace(name))
	if name == "" {
		return "unnamed"
	}
	return name
}

// Writer stores one snapshot and reports where it went.
type Writer interface {
	Write(ctx context.Context, result *models.DataSourceIntrospectionResult) (string, error)
}

// StreamWriter encodes snapshots to an io.Writer such as stdout.
type StreamWriter struct {
	out    io.Writer
	format Format
}

// NewStreamWriter creates a writer over out.
func NewStreamWriter(out io.Writer, format Format) *StreamWriter {
	return &StreamWriter{out: out, format: format}
}

func (w *StreamWriter) Write(_ context.Context, result *models.DataSourceIntrospectionResult) (string, error) {
	data, err := Encode(result, w.format)
	if err != nil {
		return "", err
	}
	if _, err := w.out.Write(data); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return "-", nil
}

// FileWriter stores snapshots under a local directory.
type FileWriter struct {
	dir    string
	format Format
}

// NewFileWriter creates a writer rooted at dir.
func NewFileWriter(dir string, format Format) *FileWriter {
	return &FileWriter{dir: dir, format: format}
}

func (w *FileWriter) Write(_ context.Context, result *models.DataSourceIntrospectionResult) (string, error) {
	data, err := Encode(result, w.format)
	if err != nil {
		return "", err
	}
	target := filepath.Join(w.dir, filepath.FromSlash(Key(result, w.format)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", target, err)
	}
	return target, nil
}

// New picks a writer for cfg.Destination: empty or "-" writes to stdout,
// s3://bucket/prefix uploads to S3, anything else is a local directory.
func New(ctx context.Context, cfg config.SnapshotConfig, stdout io.Writer, logger *zap.Logger) (Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	dest := strings.TrimSpace(cfg.Destination)
	switch {
	case dest == "" || dest == "-":
		return NewStreamWriter(stdout, format), nil
	case strings.HasPrefix(dest, "s3://"):
		bucket, prefix, err := ParseS3URL(dest)
		if err != nil {
			return nil, err
		}
		return NewS3Writer(ctx, cfg, bucket, prefix, format, logger)
	default:
		return NewFileWriter(dest, format), nil
	}
}

// ParseS3URL splits s3://bucket/prefix into its parts.
func ParseS3URL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid S3 destination %q, want s3://bucket/prefix", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
