package builder

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MirrorClient wraps the S3 client for an R2-compatible artifact mirror.
// Publishing is configuration-driven: without SASQUATCH_R2_* credentials the
// pipeline never constructs a client and skips the upload step entirely.
type MirrorClient struct {
	Client     *s3.Client
	BucketName string
}

// NewMirrorClient initializes a mirror client from configuration values.
func NewMirrorClient(cfg *Config) (*MirrorClient, error) {
	accountID := cfg.Values["SASQUATCH_R2_ACCOUNT_ID"]
	accessKey := cfg.Values["SASQUATCH_R2_ACCESS_KEY_ID"]
	secretKey := cfg.Values["SASQUATCH_R2_SECRET_ACCESS_KEY"]
	bucketName := cfg.Values["SASQUATCH_R2_BUCKET_NAME"]

	if accountID == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("mirror credentials missing in configuration (SASQUATCH_R2_ACCOUNT_ID, SASQUATCH_R2_ACCESS_KEY_ID, SASQUATCH_R2_SECRET_ACCESS_KEY, SASQUATCH_R2_BUCKET_NAME)")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
		}, nil
	})

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithRegion("auto"),
	}

	if Debug {
		options = append(options, awsconfig.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &MirrorClient{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

// UploadArtifact publishes a built binary under sasquatch/<arch>/<name>.
func (m *MirrorClient) UploadArtifact(ctx context.Context, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	key := path.Join("sasquatch", hostArch, artifactName)
	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Published artifact to mirror: %s\n", key)
	return nil
}

// publishArtifact uploads the binary when a mirror is configured. Mirror
// failures never fail the run; the build already succeeded locally.
func publishArtifact(ctx context.Context, cfg *Config, filePath string) {
	client, err := NewMirrorClient(cfg)
	if err != nil {
		debugf("Mirror not configured: %v\n", err)
		return
	}
	if err := client.UploadArtifact(ctx, filePath); err != nil {
		cPrintf(colWarn, "Mirror upload failed: %v (continuing)\n", err)
	}
}
