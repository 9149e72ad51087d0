package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/config"
	"github.com/ekaya-inc/ekaya-introspect/pkg/logging"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// putObjectAPI is the part of the S3 client the writer uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer uploads snapshots to s3://bucket/prefix/<key>.
type S3Writer struct {
	client       putObjectAPI
	bucket       string
	prefix       string
	format       Format
	storageClass string
	logger       *zap.Logger
}

// NewS3Writer loads AWS configuration from the environment and shared
// config files. cfg.S3Endpoint and cfg.S3PathStyle support S3-compatible
// stores such as MinIO.
func NewS3Writer(ctx context.Context, cfg config.SnapshotConfig, bucket, prefix string, format Format, logger *zap.Logger) (*S3Writer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		})
	}
	if cfg.S3PathStyle {
		opts = append(opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newS3Writer(s3.NewFromConfig(awsCfg, opts...), bucket, prefix, format, cfg.S3StorageClass, logger), nil
}

func newS3Writer(client putObjectAPI, bucket, prefix string, format Format, storageClass string, logger *zap.Logger) *S3Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Writer{
		client:       client,
		bucket:       bucket,
		prefix:       prefix,
		format:       format,
		storageClass: storageClass,
		logger:       logger.Named("snapshot"),
	}
}

func (w *S3Writer) Write(ctx context.Context, result *models.DataSourceIntrospectionResult) (string, error) {
	data, err := Encode(result, w.format)
	if err != nil {
		return "", err
	}
	key := path.Join(w.prefix, Key(result, w.format))

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(w.format.ContentType()),
		Metadata: map[string]string{
			"datasource":      result.DataSourceName,
			"datasource-type": string(result.DataSourceType),
			"snapshot-id":     result.ID.String(),
		},
	}
	if w.storageClass != "" {
		input.StorageClass = types.StorageClass(w.storageClass)
	}

	if _, err := w.client.PutObject(ctx, input); err != nil {
		w.logger.Warn("snapshot upload failed",
			zap.String("bucket", w.bucket),
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return "", fmt.Errorf("failed to upload snapshot to s3://%s/%s: %w", w.bucket, key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", w.bucket, key)
	w.logger.Info("snapshot uploaded",
		zap.String("location", location),
		zap.Int("bytes", len(data)),
	)
	return location, nil
}
