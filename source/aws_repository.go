package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

// AwsS3Repository is a struct that implements the Repository interface for
// handling a manifest/configuration bundle stored in an S3 bucket.
type AwsS3Repository struct {
	sync.RWMutex                         // RWMutex to synchronize access to data during refresh
	Name          string                 // Name of the configuration source
	data          map[string]interface{} // Map of document name to decoded document
	BucketName    string                 // Name of the S3 bucket
	ObjectName    string                 // Key of the bundle file within the bucket
	Region        string                 // AWS region of the bucket (default chain when empty)
	AccessKey     string                 // Optional static access key
	SecretKey     string                 // Optional static secret key
	Client        *s3.Client             // S3 client instance
	rawData       []byte                 // Raw bytes of the bundle file
	clientOnce    sync.Once              // Ensures client is initialized only once
	clientInitErr error                  // Stores error from client initialization
}

// NewAwsS3Repository creates an AwsS3Repository for the given bucket and
// object key. Credentials come from the default AWS chain unless a static
// access/secret key pair is set on the struct.
func NewAwsS3Repository(name, bucket, key, region string) *AwsS3Repository {
	return &AwsS3Repository{Name: name, BucketName: bucket, ObjectName: key, Region: region}
}

// Refresh reads the bundle file from the S3 bucket and unmarshals it into
// the data map.
func (a *AwsS3Repository) Refresh() error {
	ctx := context.Background()

	// Thread-safe client initialization using sync.Once (only if client not pre-configured)
	if a.Client == nil {
		a.clientOnce.Do(func() {
			opts := []func(*config.LoadOptions) error{}
			if a.Region != "" {
				opts = append(opts, config.WithRegion(a.Region))
			}
			if a.AccessKey != "" {
				opts = append(opts, config.WithCredentialsProvider(
					credentials.NewStaticCredentialsProvider(a.AccessKey, a.SecretKey, ""),
				))
			}
			cfg, err := config.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				a.clientInitErr = fmt.Errorf("failed to load AWS config: %w", err)
				return
			}
			a.Client = s3.NewFromConfig(cfg)
		})
		if a.clientInitErr != nil {
			return a.clientInitErr
		}
	}

	// Network I/O outside lock for better performance
	result, err := a.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.BucketName),
		Key:    aws.String(a.ObjectName),
	})
	if err != nil {
		return err
	}
	defer result.Body.Close()

	fileContent, err := io.ReadAll(result.Body)
	if err != nil {
		return err
	}

	// Unmarshal to temp variable outside lock to prevent data corruption on error
	var tempData map[string]interface{}
	if err := yaml.Unmarshal(fileContent, &tempData); err != nil {
		return err
	}

	// Only lock for atomic data swap
	a.Lock()
	a.data = tempData
	a.rawData = fileContent
	a.Unlock()

	return nil
}

// GetName returns the name of the configuration source.
func (a *AwsS3Repository) GetName() string {
	return a.Name
}

// GetData returns the decoded document stored under the given name.
func (a *AwsS3Repository) GetData(name string) (interface{}, bool) {
	a.RLock()
	defer a.RUnlock()
	document, isPresent := a.data[name]
	return document, isPresent
}

// GetRawData returns the raw bytes of the last fetched bundle.
func (a *AwsS3Repository) GetRawData() []byte {
	a.RLock()
	defer a.RUnlock()
	return a.rawData
}
