package backup

import (
	"fmt"
	"io"
	"log"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/vpastila/mineserv/internal/config"
)

// S3Destination stores archives in an S3 bucket or S3-compatible storage.
type S3Destination struct {
	cfg      config.S3BackupConfig
	client   *s3.S3
	uploader *s3manager.Uploader
}

// NewS3Destination creates a destination for the configured bucket.
func NewS3Destination(cfg config.S3BackupConfig) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	// Custom endpoint for S3-compatible storage such as MinIO.
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	log.Printf("[Backup] Using S3 destination bucket=%s region=%s", cfg.Bucket, cfg.Region)
	return &S3Destination{
		cfg:      cfg,
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

// Upload streams an archive to the bucket.
func (d *S3Destination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	key := d.key(filename)
	_, err := d.uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(d.cfg.Bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to s3://%s/%s: %w", d.cfg.Bucket, key, err)
	}
	log.Printf("[Backup] Uploaded s3://%s/%s (%d bytes)", d.cfg.Bucket, key, sizeBytes)
	return nil
}

// Download streams an archive from the bucket.
func (d *S3Destination) Download(filename string, writer io.Writer) error {
	key := d.key(filename)
	result, err := d.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get s3://%s/%s: %w", d.cfg.Bucket, key, err)
	}
	defer result.Body.Close()

	if _, err := io.Copy(writer, result.Body); err != nil {
		return fmt.Errorf("failed to read s3 object: %w", err)
	}
	return nil
}

// Delete removes an archive from the bucket.
func (d *S3Destination) Delete(filename string) error {
	key := d.key(filename)
	_, err := d.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", d.cfg.Bucket, key, err)
	}
	return nil
}

// List returns the archives under the configured prefix.
func (d *S3Destination) List() ([]StoredFile, error) {
	prefix := d.cfg.Prefix
	if prefix != "" {
		prefix += "/"
	}

	var files []StoredFile
	err := d.client.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(d.cfg.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			if aws.StringValue(obj.Key) == prefix {
				continue
			}
			files = append(files, StoredFile{
				Filename:  path.Base(aws.StringValue(obj.Key)),
				SizeBytes: aws.Int64Value(obj.Size),
				CreatedAt: aws.TimeValue(obj.LastModified).Unix(),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list s3 objects: %w", err)
	}
	return files, nil
}

// Type returns the destination type identifier.
func (d *S3Destination) Type() string {
	return "s3"
}

func (d *S3Destination) key(filename string) string {
	if d.cfg.Prefix == "" {
		return filename
	}
	return path.Join(d.cfg.Prefix, filename)
}
