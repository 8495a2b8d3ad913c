package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"news-faces/config"
)

// maxImageBytes begrenzt die Größe heruntergeladener Portraits.
const maxImageBytes = 10 << 20

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpunkt.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// ObjectPutter ist der Teil des S3-Clients, den das Hosting braucht.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UploadFile lädt Daten ins S3 hoch und gibt den Link zurück.
func UploadFile(ctx context.Context, client ObjectPutter, bucket, key, contentType string, data []byte, cfg *config.Config) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(cfg.S3URL, "/"), bucket, key), nil
}

// S3ImageHost lädt Portraits herunter und legt sie dauerhaft im Bucket ab.
type S3ImageHost struct {
	Config     *config.Config
	Client     ObjectPutter
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewS3ImageHost(cfg *config.Config, client ObjectPutter, logger *zap.Logger) *S3ImageHost {
	return &S3ImageHost{
		Config:     cfg,
		Client:     client,
		HTTPClient: &http.Client{Timeout: cfg.ImageHTTPTimeout},
		Logger:     logger,
	}
}

// Host lädt sourceURL herunter und speichert das Bild unter <prefix>/<slug>.<ext>.
func (h *S3ImageHost) Host(ctx context.Context, personName, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", h.Config.WikimediaUserAgent)

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("unexpected content type %q", contentType)
	}

	key := path.Join(h.Config.S3KeyPrefix, Slug(personName)+imageExt(sourceURL, contentType))
	link, err := UploadFile(ctx, h.Client, h.Config.S3Bucket, key, contentType, data, h.Config)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	h.Logger.Debug("Bild gehostet", zap.String("name", personName), zap.String("key", key))
	return link, nil
}

// Slug macht aus einem Namen einen S3-tauglichen Schlüsselteil ("Jane Doe" -> "jane-doe").
func Slug(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "unknown"
	}
	return s
}

func imageExt(sourceURL, contentType string) string {
	switch strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	}
	if u, err := url.Parse(sourceURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return ".img"
}
