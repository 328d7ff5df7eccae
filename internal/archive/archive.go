// Package archive writes cold snapshots of completed stories to S3-compatible
// object storage. Snapshots are best effort; the database row in
// completed_stories remains the system of record.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"newsroom/api/internal/feed"
)

// Store is a MinIO-backed snapshot store.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		log.Printf("archive: created bucket %s", bucket)
	}

	return &Store{client: client, bucket: bucket}, nil
}

// PutStory uploads one story snapshot as JSON under stories/<id>.json.
func (s *Store) PutStory(ctx context.Context, story feed.CompletedStory) error {
	payload, err := json.MarshalIndent(story, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal story %s: %w", story.ID, err)
	}

	key := fmt.Sprintf("stories/%s.json", story.ID)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put story %s: %w", story.ID, err)
	}
	return nil
}

// GetStory fetches a snapshot back, mostly for operational spot checks.
func (s *Store) GetStory(ctx context.Context, storyID string) (feed.CompletedStory, error) {
	key := fmt.Sprintf("stories/%s.json", storyID)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return feed.CompletedStory{}, fmt.Errorf("get story %s: %w", storyID, err)
	}
	defer obj.Close()

	var story feed.CompletedStory
	if err := json.NewDecoder(obj).Decode(&story); err != nil {
		return feed.CompletedStory{}, fmt.Errorf("decode story %s: %w", storyID, err)
	}
	return story, nil
}
