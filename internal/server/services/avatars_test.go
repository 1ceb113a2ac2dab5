package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	sc "github.com/dmitrijs2005/gophauth/internal/server/config"
)

func newAvatarSvc(t *testing.T) (*AvatarService, *fixture) {
	t.Helper()
	f := newFixture(t)
	cfg := &sc.Config{
		S3Region:        "us-east-1",
		S3RootUser:      "minioadmin",
		S3RootPassword:  "minioadmin",
		S3BaseEndpoint:  "http://127.0.0.1:9000",
		S3Bucket:        "avatars",
		AvatarUploadTTL: 15 * time.Minute,
	}
	return NewAvatarService(f.tr, f.store, cfg, f.clock, logging.NewNopLogger()), f
}

// stubPresign replaces the AWS seams for the duration of the test.
func stubPresign(t *testing.T, putErr, getErr error) {
	t.Helper()
	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	origPut, origGet := presignPutObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
		presignGetObject = origGet
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client { return &s3.Client{} }
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		if putErr != nil {
			return nil, putErr
		}
		return &v4.PresignedHTTPRequest{URL: "https://s3.local/" + *in.Bucket + "/" + *in.Key + "?put"}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		if getErr != nil {
			return nil, getErr
		}
		return &v4.PresignedHTTPRequest{URL: "https://s3.local/" + *in.Bucket + "/" + *in.Key + "?get"}, nil
	}
}

func Test_getPresignClient_OptionsAndError(t *testing.T) {
	svc, _ := newAvatarSvc(t)

	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		if lo.Credentials == nil {
			t.Fatalf("static credentials not applied")
		}
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }

	pc, err := svc.getPresignClient(context.Background())
	if err != nil || pc == nil {
		t.Fatalf("getPresignClient: pc=%v err=%v", pc, err)
	}
	if opts.BaseEndpoint == nil || *opts.BaseEndpoint != "http://127.0.0.1:9000" {
		t.Fatalf("BaseEndpoint mismatch: %v", opts.BaseEndpoint)
	}
	if !opts.UsePathStyle {
		t.Fatalf("path-style addressing expected")
	}

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	if _, err := svc.getPresignClient(context.Background()); err == nil || err.Error() != "load-fail" {
		t.Fatalf("want load-fail, got %v", err)
	}
}

func TestRequestUpload_StoresKey(t *testing.T) {
	svc, f := newAvatarSvc(t)
	a := f.register(t, "alice", "alice@example.com")
	stubPresign(t, nil, nil)

	up, err := svc.RequestUpload(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("RequestUpload: %v", err)
	}
	if !strings.HasPrefix(up.Key, "avatars/"+a.ID+"/") {
		t.Fatalf("unexpected key %q", up.Key)
	}
	if !strings.HasSuffix(up.URL, up.Key+"?put") {
		t.Fatalf("unexpected url %q", up.URL)
	}
	if !up.ExpiresAt.Equal(f.clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", up.ExpiresAt)
	}
	if got := f.profile(t, a.ID).AvatarKey; got != up.Key {
		t.Fatalf("profile avatar key = %q, want %q", got, up.Key)
	}

	url, err := svc.AvatarURL(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("AvatarURL: %v", err)
	}
	if !strings.HasSuffix(url, up.Key+"?get") {
		t.Fatalf("unexpected get url %q", url)
	}
}

func TestRequestUpload_PresignErrorKeepsProfile(t *testing.T) {
	svc, f := newAvatarSvc(t)
	a := f.register(t, "alice", "alice@example.com")
	stubPresign(t, errors.New("presign-put-fail"), nil)

	_, err := svc.RequestUpload(context.Background(), a.ID)
	if err == nil || !strings.Contains(err.Error(), "presign-put-fail") {
		t.Fatalf("want presign-put-fail, got %v", err)
	}
	if got := f.profile(t, a.ID).AvatarKey; got != "" {
		t.Fatalf("avatar key must stay empty, got %q", got)
	}
}

func TestRequestUpload_UnknownAccount(t *testing.T) {
	svc, _ := newAvatarSvc(t)
	stubPresign(t, nil, nil)

	_, err := svc.RequestUpload(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestAvatarURL_NoAvatar(t *testing.T) {
	svc, f := newAvatarSvc(t)
	a := f.register(t, "alice", "alice@example.com")
	stubPresign(t, nil, errors.New("must not be called"))

	_, err := svc.AvatarURL(context.Background(), a.ID)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestAvatarURL_PresignError(t *testing.T) {
	svc, f := newAvatarSvc(t)
	a := f.register(t, "alice", "alice@example.com")
	stubPresign(t, nil, errors.New("presign-get-fail"))

	if _, err := svc.RequestUpload(context.Background(), a.ID); err != nil {
		t.Fatalf("RequestUpload: %v", err)
	}
	_, err := svc.AvatarURL(context.Background(), a.ID)
	if err == nil || !strings.Contains(err.Error(), "presign-get-fail") {
		t.Fatalf("want presign-get-fail, got %v", err)
	}
}
