// Package archive publishes the audit export of closed voting sessions to
// S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"agora/internal/platform/config"
	"agora/internal/voting/models"
	id "agora/pkg/domain"
)

// ObjectPutter is the subset of *s3.Client used by the archiver.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client ObjectPutter
	bucket string
	logger *slog.Logger
}

func NewS3Archiver(client ObjectPutter, bucket string, logger *slog.Logger) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, logger: logger}
}

// NewS3Client builds an S3 client from cfg. Static credentials and a custom
// endpoint are optional; without them the default AWS chain is used.
func NewS3Client(ctx context.Context, cfg config.Archive) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO and most self-hosted stores only serve path-style URLs.
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectKey is the archive location of one box's export.
func ObjectKey(sessionID id.VotingSessionID, boxID id.BallotBoxID) string {
	return fmt.Sprintf("voting-sessions/%s/ballot-boxes/%s.json", sessionID, boxID)
}

func (a *S3Archiver) PublishAudit(ctx context.Context, data *models.AuditData) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal audit data: %w", err)
	}
	key := ObjectKey(data.VotingSessionID, data.BallotBoxID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.InfoContext(ctx, "audit data archived",
		"voting_session_id", data.VotingSessionID,
		"ballot_box_id", data.BallotBoxID,
		"key", key,
		"ballots", len(data.Ballots),
	)
	return nil
}
