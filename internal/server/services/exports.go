package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/logging"
	sc "github.com/dmitrijs2005/dlogr/internal/server/config"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/repomanager"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	exportLinkValidity = 15 * time.Minute
	exportBatchSize    = 500
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Export describes an uploaded JSON-lines file of events.
type Export struct {
	Key     string
	URL     string
	Count   int
	Expires time.Time
}

// ExportService dumps an account's events to S3-compatible storage.
type ExportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
	now         func() time.Time
}

func NewExportService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config, logger logging.Logger) *ExportService {
	return &ExportService{
		db:          db,
		repomanager: m,
		config:      cfg,
		logger:      logger.With("module", "exports"),
		now:         time.Now,
	}
}

// ExportKey is exports/{account}/{yyyy}/{mm}/{dd}/{uuid}.jsonl.
func ExportKey(accountID string, d time.Time) string {
	return fmt.Sprintf("exports/%s/%04d/%02d/%02d/%v.jsonl", accountID, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *ExportService) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// encode writes every event matching f as one JSON document per line.
func (s *ExportService) encode(ctx context.Context, caller *models.Account, f models.EventFilter) ([]byte, int, error) {
	repo := s.repomanager.Events(s.db)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	f.Limit = exportBatchSize
	f.Offset = 0
	written := 0
	for {
		page, err := repo.List(ctx, caller.ID, f)
		if err != nil {
			return nil, 0, err
		}
		for _, e := range page.Events {
			if err := enc.Encode(e); err != nil {
				return nil, 0, err
			}
		}
		written += len(page.Events)
		f.Offset += len(page.Events)
		if len(page.Events) == 0 || f.Offset >= page.Count {
			break
		}
	}
	return buf.Bytes(), written, nil
}

// Export uploads caller's events matching f and returns a presigned
// download link valid for 15 minutes. Limit and offset in f are ignored.
func (s *ExportService) Export(ctx context.Context, caller *models.Account, f models.EventFilter) (*Export, error) {
	body, count, err := s.encode(ctx, caller, f)
	if err != nil {
		return nil, err
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	bucket := s.config.S3Bucket
	key := ExportKey(caller.ID, now)

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(exportLinkValidity))
	if err != nil {
		return nil, fmt.Errorf("presign export: %w", err)
	}

	s.logger.Info(ctx, "events exported", "account_id", caller.ID, "key", key, "count", count)
	return &Export{Key: key, URL: req.URL, Count: count, Expires: now.Add(exportLinkValidity)}, nil
}
