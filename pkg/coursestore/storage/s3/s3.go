// Package s3 implements an asset store on S3-compatible object storage.
// Content and a JSON metadata document are stored as sibling objects under a
// per-course prefix.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/tendant/coursestore/pkg/coursestore"
)

const metaSuffix = ".meta.json"

// Config options for the S3 asset store.
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	Prefix          string // optional key prefix inside the bucket
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // use path-style addressing (MinIO compatibility)
}

// Store is an S3-compatible implementation of coursestore.AssetStore.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// New creates an S3 asset store.
func New(config Config) (*Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		prefix:   strings.Trim(config.Prefix, "/"),
	}, nil
}

func (s *Store) objectKey(key coursestore.AssetKey) string {
	return path.Join(s.prefix, key.Course.Org, key.Course.Course, key.Course.Run, key.Path)
}

func (s *Store) coursePrefix(key coursestore.CourseKey) string {
	return path.Join(s.prefix, key.Org, key.Course, key.Run) + "/"
}

// Save uploads the asset content and its metadata document, filling in the
// backend-assigned metadata fields.
func (s *Store) Save(ctx context.Context, asset *coursestore.Asset, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}

	sum := sha256.Sum256(data)
	asset.ContentDigest = hex.EncodeToString(sum[:])
	asset.UploadDate = time.Now().UTC()
	if asset.Fields == nil {
		asset.Fields = make(map[string]any)
	}
	objectKey := s.objectKey(asset.Key)
	asset.Fields["_id"] = uuid.NewString()
	asset.Fields["uploadDate"] = asset.UploadDate.Format(time.RFC3339Nano)
	asset.Fields["content_son"] = map[string]any{"bucket": s.bucket, "key": objectKey}
	asset.Fields["thumbnail_location"] = ""

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(asset.ContentType),
	})
	if err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}

	doc, err := json.Marshal(asset)
	if err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey + metaSuffix),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}
	return nil
}

// Open returns a reader over the asset content.
func (s *Store) Open(ctx context.Context, key coursestore.AssetKey) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, &coursestore.AssetError{Key: key, Op: "open", Err: err}
	}
	return out.Body, nil
}

// Find returns the asset metadata for a key.
func (s *Store) Find(ctx context.Context, key coursestore.AssetKey) (*coursestore.Asset, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key) + metaSuffix),
	})
	if err != nil {
		return nil, &coursestore.AssetError{Key: key, Op: "find", Err: err}
	}
	defer out.Body.Close()

	var asset coursestore.Asset
	if err := json.NewDecoder(out.Body).Decode(&asset); err != nil {
		return nil, &coursestore.AssetError{Key: key, Op: "find", Err: err}
	}
	return &asset, nil
}

// ListForCourse returns the course's assets sorted by (display name, key).
func (s *Store) ListForCourse(ctx context.Context, key coursestore.CourseKey) ([]*coursestore.Asset, error) {
	var assets []*coursestore.Asset
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.coursePrefix(key)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list assets: %w", err)
		}
		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			if !strings.HasSuffix(name, metaSuffix) {
				continue
			}
			out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(name),
			})
			if err != nil {
				return nil, err
			}
			var asset coursestore.Asset
			err = json.NewDecoder(out.Body).Decode(&asset)
			out.Body.Close()
			if err != nil {
				return nil, err
			}
			assets = append(assets, &asset)
		}
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].DisplayName != assets[j].DisplayName {
			return assets[i].DisplayName < assets[j].DisplayName
		}
		return assets[i].Key.String() < assets[j].Key.String()
	})
	return assets, nil
}

// DeleteForCourse removes every asset object belonging to the course.
func (s *Store) DeleteForCourse(ctx context.Context, key coursestore.CourseKey) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.coursePrefix(key)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Close is a no-op; the S3 client holds no connections that need closing.
func (s *Store) Close() error {
	return nil
}
