// Package storage is the gateway to the S3-compatible object store. Every
// operation leaves a row in the file-operations audit log.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"tprm-service/internal/model"
	"tprm-service/pkg/config"
	"tprm-service/prometheus"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxUploadBytes caps vendor file uploads.
const MaxUploadBytes = 10 << 20

var allowedExtensions = map[string]bool{
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true,
	"txt": true, "jpg": true, "jpeg": true, "png": true,
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// UploadResult identifies a stored blob.
type UploadResult struct {
	URL    string `json:"url"`
	S3Key  string `json:"s3_key"`
	Bucket string `json:"bucket"`
}

// FileService uploads, downloads and presigns blobs in the object store.
type FileService struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	db            *gorm.DB
}

// NewS3Client builds an S3 client from configuration. A non-empty endpoint
// switches to an S3-compatible store (minio and friends) with path-style
// addressing.
func NewS3Client(cfg config.S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewFileService creates a FileService.
func NewFileService(s3Client *s3.Client, bucketName string, db *gorm.DB) *FileService {
	return &FileService{
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    bucketName,
		db:            db,
	}
}

// SanitizeFilename restricts a name to [A-Za-z0-9._-] and 100 characters.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

// ValidateUpload checks size and extension limits for vendor-supplied files.
func ValidateUpload(name string, size int64) error {
	if size > MaxUploadBytes {
		return fmt.Errorf("file exceeds the %d byte limit", MaxUploadBytes)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if !allowedExtensions[ext] {
		return fmt.Errorf("file extension %q is not allowed", ext)
	}
	return nil
}

// Upload stores the bytes under a fresh key and records the operation.
func (fs *FileService) Upload(ctx context.Context, tenantID, userID uint, data []byte, customName string) (*UploadResult, error) {
	name := SanitizeFilename(customName)
	s3Key := fmt.Sprintf("documents/%d/%s/%s", tenantID, uuid.New().String(), name)

	_, err := fs.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(fs.bucketName),
		Key:    aws.String(s3Key),
		Body:   bytes.NewReader(data),
	})
	fs.logOperation(tenantID, userID, "upload", name, s3Key, err)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file to s3: %w", err)
	}

	return &UploadResult{
		URL:    fmt.Sprintf("s3://%s/%s", fs.bucketName, s3Key),
		S3Key:  s3Key,
		Bucket: fs.bucketName,
	}, nil
}

// Download fetches a blob into destDir and returns the local path.
func (fs *FileService) Download(ctx context.Context, tenantID, userID uint, s3Key, destDir string) (string, error) {
	out, err := fs.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucketName),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		fs.logOperation(tenantID, userID, "download", "", s3Key, err)
		return "", fmt.Errorf("failed to download file from s3: %w", err)
	}
	defer out.Body.Close()

	destPath := filepath.Join(destDir, SanitizeFilename(filepath.Base(s3Key)))
	f, err := os.Create(destPath)
	if err != nil {
		fs.logOperation(tenantID, userID, "download", "", s3Key, err)
		return "", fmt.Errorf("failed to create local file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		fs.logOperation(tenantID, userID, "download", "", s3Key, err)
		return "", fmt.Errorf("failed to write local file: %w", err)
	}

	fs.logOperation(tenantID, userID, "download", filepath.Base(destPath), s3Key, nil)
	return destPath, nil
}

// Presign generates a time-limited download URL.
func (fs *FileService) Presign(ctx context.Context, tenantID, userID uint, s3Key string, expiry time.Duration) (string, error) {
	result, err := fs.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucketName),
		Key:    aws.String(s3Key),
	}, s3.WithPresignExpires(expiry))
	fs.logOperation(tenantID, userID, "presign", "", s3Key, err)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return result.URL, nil
}

func (fs *FileService) logOperation(tenantID, userID uint, op, fileName, s3Key string, opErr error) {
	status := model.FileOpStatusSuccess
	detail := ""
	if opErr != nil {
		status = model.FileOpStatusFailed
		detail = opErr.Error()
	}
	prometheus.FileOperationsCounter.WithLabelValues(op, status).Inc()

	// Audit logging is best-effort; a failed insert must not fail the
	// gateway call.
	fs.db.Create(&model.FileOperationLog{
		TenantID:      tenantID,
		OperationType: op,
		UserID:        userID,
		FileName:      fileName,
		S3Key:         s3Key,
		Status:        status,
		ErrorDetail:   detail,
	})
}
