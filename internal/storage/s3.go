package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// gcmMagic prefixes objects encrypted by this package.
const gcmMagic = "GCM3NCR0"

// ErrDecrypt is returned when an encrypted object cannot be opened.
var ErrDecrypt = errors.New("decrypt failed")

// S3Client wraps the AWS S3 client with optional at-rest encryption.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
	attempts   uint
}

// FileMetadata represents metadata about a stored file
type FileMetadata struct {
	OriginalName string            `json:"original_name"`
	ContentType  string            `json:"content_type"`
	Size         int64             `json:"size"`
	Encrypted    bool              `json:"encrypted"`
	Metadata     map[string]string `json:"metadata"`
}

// NewS3Client creates a client for bucketName using the default AWS config
// chain. attempts bounds upload retries (minimum 1).
func NewS3Client(ctx context.Context, bucketName string, attempts int) (*S3Client, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("s3: empty bucket name")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}
	cli := s3.NewFromConfig(cfg)
	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		bucketName: bucketName,
		attempts:   uint(attempts),
	}, nil
}

// Bucket returns the configured bucket.
func (s *S3Client) Bucket() string { return s.bucketName }

// Ping checks that the bucket is reachable with the current credentials.
func (s *S3Client) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}

// DownloadFile fetches key and decrypts it when it carries the package's
// encryption header and a password is given.
func (s *S3Client) DownloadFile(ctx context.Context, key, password string) ([]byte, *FileMetadata, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	meta := &FileMetadata{Metadata: make(map[string]string)}
	for k, v := range result.Metadata {
		meta.Metadata[strings.ToLower(k)] = v
	}
	meta.OriginalName = meta.Metadata["name"]
	if result.ContentType != nil {
		meta.ContentType = *result.ContentType
	}

	if bytes.HasPrefix(data, []byte(gcmMagic)) {
		meta.Encrypted = true
		if data, err = decryptGCM(data, password); err != nil {
			return nil, nil, err
		}
	}
	meta.Size = int64(len(data))
	log.Debug().Str("bucket", s.bucketName).Str("key", key).Int("size", len(data)).Bool("encrypted", meta.Encrypted).Msg("downloaded object")
	return data, meta, nil
}

// UploadFile stores data under key, encrypting it when password is set.
// Transient failures are retried.
func (s *S3Client) UploadFile(ctx context.Context, key string, data []byte, password string, meta *FileMetadata) error {
	body := data
	s3Meta := map[string]string{}
	contentType := "application/octet-stream"
	if meta != nil {
		if meta.OriginalName != "" {
			s3Meta["name"] = meta.OriginalName
		}
		if meta.ContentType != "" {
			contentType = meta.ContentType
		}
		for k, v := range meta.Metadata {
			s3Meta[k] = v
		}
	}
	if password != "" {
		enc, err := encryptGCM(data, password)
		if err != nil {
			return fmt.Errorf("failed to encrypt data: %w", err)
		}
		body = enc
		s3Meta["encrypted"] = "true"
		s3Meta["encryption-format"] = gcmMagic
	}

	start := time.Now()
	err := retry.Do(
		func() error {
			_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
				Bucket:      aws.String(s.bucketName),
				Key:         aws.String(key),
				Body:        bytes.NewReader(body),
				ContentType: aws.String(contentType),
				Metadata:    s3Meta,
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Str("key", key).Uint("attempt", n+1).Msg("s3 upload failed, retrying")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("bucket", s.bucketName).Str("key", key).Int("size", len(body)).Dur("took", time.Since(start)).Msg("uploaded object to S3")
	return nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(ref string) (bucket, key string, err error) {
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if !strings.HasPrefix(ref, "s3://") || slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}

// Format: magic(8) + salt(16) + nonce(12) + ciphertext+tag
func encryptGCM(data []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := make([]byte, 0, len(gcmMagic)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

func decryptGCM(data []byte, password string) ([]byte, error) {
	if len(data) < 8+16+12+16 {
		return nil, fmt.Errorf("%w: GCM data too short: %d bytes", ErrDecrypt, len(data))
	}
	if password == "" {
		return nil, fmt.Errorf("%w: object is encrypted and no password was given", ErrDecrypt)
	}
	salt := data[8:24]
	nonce := data[24:36]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, data[36:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plain, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Fetch downloads bucket/key regardless of the configured bucket.
func (s *S3Client) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	other := *s
	other.bucketName = bucket
	data, _, err := other.DownloadFile(ctx, key, "")
	return data, err
}
