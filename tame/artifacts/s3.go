package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"tame/tame/api"
	"tame/tame/monitoring"
)

// RemoteStore mirrors checkpoints to an S3 bucket so that evaluation machines
// and resumed runs can fetch them without access to the training host's disk.
type RemoteStore struct {
	bucket   string
	s3Client *s3.Client
}

func NewRemoteStore(bucket string) *RemoteStore {
	if bucket == "" {
		log.Fatalf("failed to provide S3 checkpoint bucket")
	}

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatalf("failed to load AWS config: %v", err)
	}

	return &RemoteStore{bucket: bucket, s3Client: s3.NewFromConfig(cfg)}
}

func checkpointKey(checkpoint api.Checkpoint) string {
	return fmt.Sprintf("checkpoints/%s_%s/epoch_%d.pt", checkpoint.Model, checkpoint.Version, checkpoint.Epoch)
}

// Upload copies a checkpoint file into the bucket, skipping files that are
// already present.
func (store *RemoteStore) Upload(checkpoint api.Checkpoint) error {
	key := checkpointKey(checkpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err := store.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() != "NotFound" {
			slog.Error("failed to check if checkpoint exists in S3", "key", key, "error", err)
			monitoring.CheckpointUploads.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to check if checkpoint exists in S3: %w", err)
		}
	} else {
		slog.Error("failed to check if checkpoint exists in S3", "key", key, "error", err)
		monitoring.CheckpointUploads.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to check if checkpoint exists in S3: %w", err)
	}

	file, err := os.Open(checkpoint.Path)
	if err != nil {
		monitoring.CheckpointUploads.WithLabelValues("error").Inc()
		return fmt.Errorf("failed reading checkpoint to upload to S3: %w", err)
	}
	defer file.Close()

	_, err = store.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		monitoring.CheckpointUploads.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upload checkpoint to S3: %w", err)
	}

	monitoring.CheckpointUploads.WithLabelValues("ok").Inc()
	slog.Info("checkpoint uploaded", "key", key, "size", checkpoint.Size)
	return nil
}

// Fetch downloads a checkpoint into destPath.
func (store *RemoteStore) Fetch(checkpoint api.Checkpoint, destPath string) error {
	key := checkpointKey(checkpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	resp, err := store.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return fmt.Errorf("checkpoint not found in S3: %w", err)
		}
		slog.Error("error retrieving checkpoint from S3", "key", key, "error", err)
		return fmt.Errorf("error retrieving checkpoint from S3: %w", err)
	}
	defer resp.Body.Close()

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return fmt.Errorf("failed to write checkpoint data: %w", err)
	}

	return nil
}

func (store *RemoteStore) Delete(checkpoint api.Checkpoint) error {
	key := checkpointKey(checkpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := store.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error deleting checkpoint %s from S3: %v", key, err)
	}
	return nil
}
