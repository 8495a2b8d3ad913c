// Command backup sichert die Postgres-Datenbank gzip-komprimiert in einen S3-Bucket
// und behält dort nur die neuesten KEEP_BACKUPS Sicherungen.
package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"news-faces/config"
	"news-faces/storage"
)

type BackupConfig struct {
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"newsfaces"`

	Bucket    string `envconfig:"BACKUP_S3_BUCKET" required:"true"`
	Endpoint  string `envconfig:"BACKUP_S3_ENDPOINT" required:"true"`
	AccessKey string `envconfig:"BACKUP_S3_ACCESS_KEY" required:"true"`
	SecretKey string `envconfig:"BACKUP_S3_SECRET_KEY" required:"true"`
	Region    string `envconfig:"BACKUP_S3_REGION" default:"us-east-1"`
	Prefix    string `envconfig:"BACKUP_S3_PREFIX" default:"backups/"`

	KeepBackups int           `envconfig:"KEEP_BACKUPS" default:"4"`
	Timeout     time.Duration `envconfig:"BACKUP_TIMEOUT" default:"15m"`
}

// s3Config übersetzt die Backup-Ziele in die Felder, die storage.NewS3Client erwartet.
func (c BackupConfig) s3Config() *config.Config {
	return &config.Config{
		S3URL:    c.Endpoint,
		S3Region: c.Region,
		S3Key:    c.AccessKey,
		S3Secret: c.SecretKey,
		S3Bucket: c.Bucket,
	}
}

// objectStore ist der Teil des S3-Clients, den die Rotation braucht.
type objectStore interface {
	storage.ObjectPutter
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	_ = godotenv.Load()
	var cfg BackupConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal("Fehler beim Laden der Konfiguration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	logger.Info("Starte Backup-Prozess", zap.String("db", cfg.DBName), zap.String("bucket", cfg.Bucket))

	dump, err := createDump(ctx, cfg)
	if err != nil {
		logger.Fatal("Fehler beim Erstellen des DB-Dumps", zap.Error(err))
	}

	s3cfg := cfg.s3Config()
	client, err := storage.NewS3Client(ctx, s3cfg)
	if err != nil {
		logger.Fatal("Fehler beim Erstellen des S3-Clients", zap.Error(err))
	}

	key := backupKey(cfg.Prefix, time.Now())
	link, err := storage.UploadFile(ctx, client, cfg.Bucket, key, "application/gzip", dump, s3cfg)
	if err != nil {
		logger.Fatal("Fehler beim Hochladen nach S3", zap.Error(err))
	}
	logger.Info("Backup hochgeladen", zap.String("url", link), zap.Int("bytes", len(dump)))

	if err := rotateBackups(ctx, client, cfg, logger); err != nil {
		logger.Fatal("Fehler bei der Rotation alter Backups", zap.Error(err))
	}
	logger.Info("Backup-Prozess erfolgreich abgeschlossen")
}

func backupKey(prefix string, now time.Time) string {
	return fmt.Sprintf("%sbackup-%s.sql.gz", prefix, now.UTC().Format("2006-01-02T15-04-05Z"))
}

func createDump(ctx context.Context, cfg BackupConfig) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", cfg.DBHost,
		"-p", fmt.Sprint(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort kommt über PGPASSWORD
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+cfg.DBPassword)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := io.Copy(gz, stdout); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("pg_dump: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return buf.Bytes(), nil
}

func rotateBackups(ctx context.Context, client objectStore, cfg BackupConfig, logger *zap.Logger) error {
	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.Bucket),
		Prefix: aws.String(cfg.Prefix),
	})
	if err != nil {
		return err
	}

	expired := expiredBackups(out.Contents, cfg.KeepBackups)
	if len(expired) == 0 {
		logger.Info("Keine Rotation nötig", zap.Int("vorhanden", len(out.Contents)), zap.Int("keep", cfg.KeepBackups))
		return nil
	}
	for _, key := range expired {
		logger.Info("Lösche altes Backup", zap.String("key", key))
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			logger.Warn("Löschen fehlgeschlagen", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// expiredBackups liefert die Keys aller Objekte außer den keep neuesten.
func expiredBackups(objects []types.Object, keep int) []string {
	if keep < 0 {
		keep = 0
	}
	if len(objects) <= keep {
		return nil
	}
	sorted := append([]types.Object(nil), objects...)
	sort.Slice(sorted, func(i, j int) bool {
		return aws.ToTime(sorted[i].LastModified).After(aws.ToTime(sorted[j].LastModified))
	})
	keys := make([]string, 0, len(sorted)-keep)
	for _, obj := range sorted[keep:] {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys
}
