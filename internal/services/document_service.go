// internal/services/document_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/utils"
)

var (
	ErrFileTooLarge        = errors.New("file exceeds the maximum allowed size")
	ErrFileTypeNotAllowed  = errors.New("file type is not allowed")
	ErrPresignUnsupported  = errors.New("storage backend cannot presign URLs")
	ErrDocumentCorrupted   = errors.New("stored document does not match its checksum")
	defaultDocumentMaxSize = int64(10 * 1024 * 1024) // 10MB
)

// BlobStore holds licence certificate files.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Presign(key string, expiration time.Duration) (string, error)
}

// S3Store keeps documents in a private S3 bucket.
type S3Store struct {
	client *s3.S3
	bucket string
	region string
}

func NewS3Store(cfg config.AWSConfig) (*S3Store, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3Store{client: s3.New(sess), bucket: cfg.S3Bucket, region: cfg.Region}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(contentType),
		ContentLength:        aws.Int64(int64(len(data))),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

func (s *S3Store) Presign(key string, expiration time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, nil
}

// LocalStore keeps documents on the local filesystem for development
// setups without a bucket.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return p, nil
}

func (s *LocalStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return "file://" + filepath.ToSlash(p), nil
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalStore) Presign(string, time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// NewBlobStore picks S3 when a bucket is configured and the local
// filesystem otherwise.
func NewBlobStore(cfg config.AWSConfig) (BlobStore, error) {
	if cfg.S3Bucket != "" {
		return NewS3Store(cfg)
	}
	logrus.WithField("path", cfg.LocalStoragePath).Warn("No S3 bucket configured, storing licence documents locally")
	return NewLocalStore(cfg.LocalStoragePath)
}

type UploadOptions struct {
	MaxSize      int64 // in bytes
	AllowedTypes []string
}

type DocumentService struct {
	repos      *repository.Repositories
	store      BlobStore
	lookups    *LookupProvider
	options    UploadOptions
	presignTTL time.Duration
	logger     *logrus.Entry
}

// DocumentContent is a document read back through the service.
type DocumentContent struct {
	Document *models.LicenceDocument
	Data     []byte
}

func NewDocumentService(repos *repository.Repositories, store BlobStore, lookups *LookupProvider, presignTTL time.Duration) *DocumentService {
	return &DocumentService{
		repos:   repos,
		store:   store,
		lookups: lookups,
		options: UploadOptions{
			MaxSize:      defaultDocumentMaxSize,
			AllowedTypes: []string{".pdf", ".jpg", ".jpeg", ".png"},
		},
		presignTTL: presignTTL,
		logger:     logrus.WithField("component", "document_service"),
	}
}

// Upload attaches a scanned certificate to a licence.
func (s *DocumentService) Upload(ctx context.Context, licenceID, userID uuid.UUID, file multipart.File, header *multipart.FileHeader) (*models.LicenceDocument, error) {
	licence, err := s.repos.Licences.GetLicence(ctx, licenceID)
	if err != nil {
		return nil, err
	}

	if s.options.MaxSize > 0 && header.Size > s.options.MaxSize {
		return nil, ErrFileTooLarge
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !s.allowed(ext) {
		return nil, ErrFileTypeNotAllowed
	}

	data, err := io.ReadAll(io.LimitReader(file, s.options.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > s.options.MaxSize {
		return nil, ErrFileTooLarge
	}
	contentType, ok := sniffDocumentType(data)
	if !ok {
		return nil, ErrFileTypeNotAllowed
	}

	key := s.generateKey(licence.ID, ext)
	url, err := s.store.Put(ctx, key, contentType, data)
	if err != nil {
		return nil, compliance.NewExternalUnavailable("document storage", err)
	}

	doc := &models.LicenceDocument{
		LicenceID:  licence.ID,
		FileName:   filepath.Base(header.Filename),
		StorageKey: key,
		URL:        url,
		Size:       int64(len(data)),
		MimeType:   contentType,
		Checksum:   utils.HashBytes(data),
		UploadedBy: userID,
	}
	if err := s.repos.Licences.AddDocument(ctx, doc); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.WithError(delErr).WithField("key", key).Warn("Failed to remove orphaned document")
		}
		return nil, err
	}
	s.lookups.InvalidateLicence(ctx, licence)

	s.logger.WithFields(logrus.Fields{
		"licence_id":  licence.ID,
		"document_id": doc.ID,
		"size":        doc.Size,
	}).Info("Licence document uploaded")
	return doc, nil
}

func (s *DocumentService) Delete(ctx context.Context, licenceID, documentID uuid.UUID) error {
	doc, err := s.repos.Licences.GetDocument(ctx, licenceID, documentID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		return compliance.NewExternalUnavailable("document storage", err)
	}
	return s.repos.Licences.DeleteDocument(ctx, doc)
}

// PresignedURL returns a time-limited download link. Backends that cannot
// presign return ErrPresignUnsupported; use Download instead.
func (s *DocumentService) PresignedURL(ctx context.Context, licenceID, documentID uuid.UUID) (string, error) {
	doc, err := s.repos.Licences.GetDocument(ctx, licenceID, documentID)
	if err != nil {
		return "", err
	}
	return s.store.Presign(doc.StorageKey, s.presignTTL)
}

// Download reads a document back and verifies its checksum.
func (s *DocumentService) Download(ctx context.Context, licenceID, documentID uuid.UUID) (*DocumentContent, error) {
	doc, err := s.repos.Licences.GetDocument(ctx, licenceID, documentID)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, compliance.NewExternalUnavailable("document storage", err)
	}
	if doc.Checksum != "" && !utils.ValidateFileHash(data, doc.Checksum) {
		s.logger.WithField("document_id", doc.ID).Error("Licence document checksum mismatch")
		return nil, ErrDocumentCorrupted
	}
	return &DocumentContent{Document: doc, Data: data}, nil
}

func (s *DocumentService) allowed(ext string) bool {
	for _, t := range s.options.AllowedTypes {
		if ext == t {
			return true
		}
	}
	return false
}

func (s *DocumentService) generateKey(licenceID uuid.UUID, ext string) string {
	timestamp := time.Now().UTC().Format("20060102")
	return fmt.Sprintf("licences/%s/%s_%s%s", licenceID, timestamp, uuid.New().String()[:8], ext)
}

// sniffDocumentType checks the file signature rather than trusting the
// client's content type.
func sniffDocumentType(buffer []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(buffer, []byte("%PDF-")):
		return "application/pdf", true
	case len(buffer) >= 3 && buffer[0] == 0xFF && buffer[1] == 0xD8 && buffer[2] == 0xFF:
		return "image/jpeg", true
	case bytes.HasPrefix(buffer, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png", true
	}
	return "", false
}
