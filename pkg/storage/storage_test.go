package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/courtlens/tenancy/pkg/storage"
)

// MockS3Client is a mock implementation of the S3Client interface
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.CreateBucketOutput), args.Error(1)
}

func (m *MockS3Client) PutPublicAccessBlock(ctx context.Context, params *s3.PutPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.PutPublicAccessBlockOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutPublicAccessBlockOutput), args.Error(1)
}

func (m *MockS3Client) PutBucketEncryption(ctx context.Context, params *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutBucketEncryptionOutput), args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.ListObjectsV2Output), args.Error(1)
}

func (m *MockS3Client) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectsOutput), args.Error(1)
}

func newBuckets(t *testing.T, client storage.S3Client, region string) *storage.Buckets {
	t.Helper()
	b, err := storage.New(context.Background(), storage.Config{Region: region}, storage.WithS3Client(client))
	require.NoError(t, err)
	return b
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("static credentials", func(t *testing.T) {
		t.Parallel()
		b, err := storage.New(context.Background(), storage.Config{
			Region:         "eu-west-1",
			AccessKeyID:    "test-key",
			SecretKey:      "test-secret",
			Endpoint:       "http://localhost:9000",
			ForcePathStyle: true,
		})
		require.NoError(t, err)
		assert.NotNil(t, b)
	})

	t.Run("missing region", func(t *testing.T) {
		t.Parallel()
		_, err := storage.New(context.Background(), storage.Config{})
		assert.ErrorIs(t, err, storage.ErrInvalidConfig)
	})
}

func TestBuckets_EnsureBucket(t *testing.T) {
	t.Parallel()

	t.Run("creates with location constraint outside us-east-1", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("CreateBucket", mock.Anything, mock.MatchedBy(func(in *s3.CreateBucketInput) bool {
			return aws.ToString(in.Bucket) == "tenant-acme" &&
				in.CreateBucketConfiguration != nil &&
				in.CreateBucketConfiguration.LocationConstraint == types.BucketLocationConstraint("eu-west-1")
		}), mock.Anything).Return(&s3.CreateBucketOutput{}, nil)

		require.NoError(t, newBuckets(t, client, "eu-west-1").EnsureBucket(context.Background(), "tenant-acme"))
		client.AssertExpectations(t)
	})

	t.Run("omits location constraint in us-east-1", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("CreateBucket", mock.Anything, mock.MatchedBy(func(in *s3.CreateBucketInput) bool {
			return in.CreateBucketConfiguration == nil
		}), mock.Anything).Return(&s3.CreateBucketOutput{}, nil)

		require.NoError(t, newBuckets(t, client, "us-east-1").EnsureBucket(context.Background(), "tenant-acme"))
		client.AssertExpectations(t)
	})

	t.Run("already owned is success", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("CreateBucket", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &types.BucketAlreadyOwnedByYou{})

		assert.NoError(t, newBuckets(t, client, "us-east-1").EnsureBucket(context.Background(), "tenant-acme"))
	})

	t.Run("owned by another account", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("CreateBucket", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &types.BucketAlreadyExists{})

		err := newBuckets(t, client, "us-east-1").EnsureBucket(context.Background(), "tenant-acme")
		assert.ErrorIs(t, err, storage.ErrBucketTaken)
	})

	t.Run("invalid name never reaches S3", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)

		err := newBuckets(t, client, "us-east-1").EnsureBucket(context.Background(), "Tenant_Acme")
		assert.ErrorIs(t, err, storage.ErrInvalidBucket)
		client.AssertNotCalled(t, "CreateBucket", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBuckets_Hardening(t *testing.T) {
	t.Parallel()

	t.Run("public access block", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("PutPublicAccessBlock", mock.Anything, mock.MatchedBy(func(in *s3.PutPublicAccessBlockInput) bool {
			c := in.PublicAccessBlockConfiguration
			return c != nil && aws.ToBool(c.BlockPublicAcls) && aws.ToBool(c.BlockPublicPolicy) &&
				aws.ToBool(c.IgnorePublicAcls) && aws.ToBool(c.RestrictPublicBuckets)
		}), mock.Anything).Return(&s3.PutPublicAccessBlockOutput{}, nil)

		require.NoError(t, newBuckets(t, client, "us-east-1").BlockPublicAccess(context.Background(), "tenant-acme"))
		client.AssertExpectations(t)
	})

	t.Run("SSE-S3 by default", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("PutBucketEncryption", mock.Anything, mock.MatchedBy(func(in *s3.PutBucketEncryptionInput) bool {
			rule := in.ServerSideEncryptionConfiguration.Rules[0]
			return rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm == types.ServerSideEncryptionAes256
		}), mock.Anything).Return(&s3.PutBucketEncryptionOutput{}, nil)

		require.NoError(t, newBuckets(t, client, "us-east-1").EnableEncryption(context.Background(), "tenant-acme"))
		client.AssertExpectations(t)
	})

	t.Run("SSE-KMS with key id", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("PutBucketEncryption", mock.Anything, mock.MatchedBy(func(in *s3.PutBucketEncryptionInput) bool {
			def := in.ServerSideEncryptionConfiguration.Rules[0].ApplyServerSideEncryptionByDefault
			return def.SSEAlgorithm == types.ServerSideEncryptionAwsKms && aws.ToString(def.KMSMasterKeyID) == "key-1"
		}), mock.Anything).Return(&s3.PutBucketEncryptionOutput{}, nil)

		b, err := storage.New(context.Background(), storage.Config{Region: "us-east-1", KMSKeyID: "key-1"}, storage.WithS3Client(client))
		require.NoError(t, err)
		require.NoError(t, b.EnableEncryption(context.Background(), "tenant-acme"))
		client.AssertExpectations(t)
	})

	t.Run("access denied is classified", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("PutPublicAccessBlock", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"})

		err := newBuckets(t, client, "us-east-1").BlockPublicAccess(context.Background(), "tenant-acme")
		assert.ErrorIs(t, err, storage.ErrAccessDenied)
	})
}

func TestBuckets_PutMarker(t *testing.T) {
	t.Parallel()

	t.Run("writes tagged marker at path root", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.Key) == "tenants/t1/.tenant" &&
				aws.ToString(in.Tagging) == "tenant=t1" &&
				in.Metadata["tenant"] == "t1"
		}), mock.Anything).Return(&s3.PutObjectOutput{}, nil)

		err := newBuckets(t, client, "us-east-1").PutMarker(context.Background(), "tenant-storage", "/tenants/t1/", map[string]string{"tenant": "t1"})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("refuses empty path", func(t *testing.T) {
		t.Parallel()
		err := newBuckets(t, new(MockS3Client), "us-east-1").PutMarker(context.Background(), "b", "/", nil)
		assert.ErrorIs(t, err, storage.ErrInvalidPath)
	})
}

func TestBuckets_DeletePrefix(t *testing.T) {
	t.Parallel()

	t.Run("deletes every listed object", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
			return aws.ToString(in.Prefix) == "tenants/t1/"
		}), mock.Anything).Return(&s3.ListObjectsV2Output{
			Contents: []types.Object{
				{Key: aws.String("tenants/t1/.tenant")},
				{Key: aws.String("tenants/t1/docs/a.pdf")},
			},
		}, nil).Once()
		client.On("DeleteObjects", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectsInput) bool {
			return len(in.Delete.Objects) == 2
		}), mock.Anything).Return(&s3.DeleteObjectsOutput{}, nil).Once()

		n, err := newBuckets(t, client, "us-east-1").DeletePrefix(context.Background(), "tenant-storage", "tenants/t1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		client.AssertExpectations(t)
	})

	t.Run("empty prefix deletes nothing", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("ListObjectsV2", mock.Anything, mock.Anything, mock.Anything).
			Return(&s3.ListObjectsV2Output{}, nil).Once()

		n, err := newBuckets(t, client, "us-east-1").DeletePrefix(context.Background(), "tenant-storage", "tenants/t2")
		require.NoError(t, err)
		assert.Zero(t, n)
		client.AssertNotCalled(t, "DeleteObjects", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing bucket", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("ListObjectsV2", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("wrapped: %w", &types.NoSuchBucket{})).Once()

		_, err := newBuckets(t, client, "us-east-1").DeletePrefix(context.Background(), "gone", "tenants/t1")
		assert.True(t, errors.Is(err, storage.ErrBucketNotFound))
	})

	t.Run("path traversal", func(t *testing.T) {
		t.Parallel()
		_, err := newBuckets(t, new(MockS3Client), "us-east-1").DeletePrefix(context.Background(), "b", "tenants/../other")
		assert.ErrorIs(t, err, storage.ErrInvalidPath)
	})
}

func TestValidBucketName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"tenant-storage", true},
		{"tenant-6f1c2a9e-1b2c-4d5e-8f90-0a1b2c3d4e5f", true},
		{"ab", false},
		{"Tenant", false},
		{"tenant..storage", false},
		{"-tenant", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, storage.ValidBucketName(tt.name))
		})
	}
}
