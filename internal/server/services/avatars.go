package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	sc "github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// AvatarUpload is a presigned PUT the client uploads the image to.
type AvatarUpload struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

// AvatarService hands out presigned S3 URLs for profile pictures. Image
// bytes never pass through the server.
type AvatarService struct {
	tr          dbx.Transactor
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	clock       Clock
	log         logging.Logger
}

func NewAvatarService(tr dbx.Transactor, rm repomanager.RepositoryManager, config *sc.Config, clock Clock, log logging.Logger) *AvatarService {
	return &AvatarService{tr: tr, repomanager: rm, config: config, clock: clock, log: log.With("module", "avatars")}
}

func avatarKey(accountID string) string {
	return fmt.Sprintf("avatars/%s/%v", accountID, uuid.New())
}

func (s *AvatarService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// RequestUpload presigns a PUT for a new object and points the profile at it.
func (s *AvatarService) RequestUpload(ctx context.Context, accountID string) (*AvatarUpload, error) {
	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating presign client: %w", err)
	}

	bucket := s.config.S3Bucket
	key := avatarKey(accountID)
	ttl := s.config.AvatarUploadTTL

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("error presigning upload: %w", err)
	}

	now := s.clock.Now()
	if err := s.repomanager.Profiles(s.tr.DB()).SetAvatarKey(ctx, accountID, key, now); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "avatar upload presigned", "account_id", accountID, "key", key)
	return &AvatarUpload{Key: key, URL: req.URL, ExpiresAt: now.Add(ttl)}, nil
}

// AvatarURL presigns a GET for the current avatar. It returns
// common.ErrorNotFound when the profile has none.
func (s *AvatarService) AvatarURL(ctx context.Context, accountID string) (string, error) {
	p, err := s.repomanager.Profiles(s.tr.DB()).Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if p.AvatarKey == "" {
		return "", common.ErrorNotFound
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", fmt.Errorf("error creating presign client: %w", err)
	}

	bucket := s.config.S3Bucket
	key := p.AvatarKey
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.AvatarUploadTTL))
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}
	return req.URL, nil
}
