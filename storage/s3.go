package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"scopus-loader/config"
)

// NewS3Client erstellt einen S3-Client für den Export-Bucket.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// SyncExports lädt neue JSON-Exporte aus dem Bucket ins DataDir. Bereits
// vorhandene Dateien werden nicht erneut geladen; der Checkpoint der
// Ingestion bleibt davon unberührt.
func SyncExports(ctx context.Context, client *s3.Client, cfg *config.Config, log *zap.Logger) (int, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return 0, fmt.Errorf("create data dir: %w", err)
	}

	downloaded := 0
	var continuation *string
	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &cfg.S3Bucket,
			Prefix:            &cfg.S3Prefix,
			ContinuationToken: continuation,
		})
		if err != nil {
			return downloaded, fmt.Errorf("list bucket %s: %w", cfg.S3Bucket, err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			local := filepath.Join(cfg.DataDir, filepath.Base(key))
			if _, err := os.Stat(local); err == nil {
				continue
			}

			getOut, err := client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: &cfg.S3Bucket,
				Key:    &key,
			})
			if err != nil {
				return downloaded, fmt.Errorf("get object %s: %w", key, err)
			}
			var buf bytes.Buffer
			_, err = buf.ReadFrom(getOut.Body)
			getOut.Body.Close()
			if err != nil {
				return downloaded, fmt.Errorf("read object %s: %w", key, err)
			}
			if err := os.WriteFile(local, buf.Bytes(), 0o644); err != nil {
				return downloaded, fmt.Errorf("write %s: %w", local, err)
			}
			downloaded++
			log.Debug("Export file downloaded", zap.String("key", key), zap.String("local", local))
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}

	log.Info("Export feed synced", zap.Int("new_files", downloaded))
	return downloaded, nil
}
