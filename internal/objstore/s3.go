// Package objstore uploads attachments straight to S3-compatible storage.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/matheus3301/schoolmsg/internal/attachment"
	"github.com/matheus3301/schoolmsg/internal/messaging"
	"go.uber.org/zap"
)

type Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
	KeyPrefix  string
	PresignTTL time.Duration
}

// Client implements attachment.Transport on top of PutObject.
type Client struct {
	cfg     Config
	s3      *s3.Client
	presign *s3.PresignClient
	logger  *zap.Logger
}

var _ attachment.Transport = (*Client)(nil)

func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		// Stream the body once; checksums and payload hashing would read it twice.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
	})

	return &Client{
		cfg:     cfg,
		s3:      client,
		presign: s3.NewPresignClient(client),
		logger:  logger,
	}, nil
}

// ObjectKey builds <prefix>/<messageID>/<uuid>-<name>.
func (c *Client) ObjectKey(messageID, fileName string) string {
	name := strings.ReplaceAll(path.Base(fileName), " ", "_")
	return path.Join(c.cfg.KeyPrefix, messageID, uuid.NewString()+"-"+name)
}

// FileURL returns the public URL of key, or "" without a public base.
func (c *Client) FileURL(key string) string {
	if c.cfg.PublicBase == "" || key == "" {
		return ""
	}
	return strings.TrimSuffix(c.cfg.PublicBase, "/") + "/" + key
}

// UploadAttachment streams f to the bucket, reporting bytes read by the SDK.
func (c *Client) UploadAttachment(ctx context.Context, messageID string, f attachment.File, progress func(int64)) (messaging.Attachment, error) {
	if f.Body == nil {
		return messaging.Attachment{}, fmt.Errorf("upload %s: no body", f.Name)
	}
	key := c.ObjectKey(messageID, f.Name)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(key),
		Body:          &progressReader{r: f.Body, onRead: progress},
		ContentLength: aws.Int64(f.Size),
		Metadata:      map[string]string{"message-id": messageID, "file-name": f.Name},
	}
	if f.MimeType != "" {
		input.ContentType = aws.String(f.MimeType)
	}
	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return messaging.Attachment{}, fmt.Errorf("put object %s: %w", key, err)
	}

	url := c.FileURL(key)
	if url == "" {
		signed, err := c.PresignGet(ctx, key)
		if err != nil {
			c.logger.Warn("presign attachment url failed", zap.String("key", key), zap.Error(err))
		}
		url = signed
	}
	c.logger.Info("attachment stored", zap.String("key", key), zap.Int64("size", f.Size))

	return messaging.Attachment{
		ID:       key,
		FileName: f.Name,
		Size:     f.Size,
		MimeType: f.MimeType,
		State:    messaging.UploadDone,
		URL:      url,
	}, nil
}

// PresignGet returns a time-limited download URL for key.
func (c *Client) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		if c.cfg.PresignTTL > 0 {
			po.Expires = c.cfg.PresignTTL
		}
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// progressReader counts bytes handed to the SDK. A seek back to the start
// (SDK retry) resets the count.
type progressReader struct {
	r      io.ReadSeeker
	read   int64
	onRead func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.onRead != nil {
			p.onRead(p.read)
		}
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.read = pos
	}
	return pos, err
}
