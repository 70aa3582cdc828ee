package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path"

	"storefront-core/pkg/errutil"

	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"
)

// objectStore keeps each Document as one JSON object in a bucket. Writes are
// read-modify-write; callers serialize writers per order.
type objectStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewObjectStore(client *minio.Client, bucket, prefix string) Store {
	return &objectStore{client: client, bucket: bucket, prefix: prefix}
}

// WithTrx returns the same store; objects are written immediately.
func (s *objectStore) WithTrx(*gorm.DB) Store {
	return s
}

func (s *objectStore) key(orderID string) string {
	return path.Join(s.prefix, orderID+".json")
}

func (s *objectStore) Create(ctx context.Context, doc *Document) error {
	if len(doc.History) == 0 {
		return errutil.ValidationFailed("audit log needs an initial entry", nil)
	}

	if _, err := s.client.StatObject(ctx, s.bucket, s.key(doc.OrderID), minio.StatObjectOptions{}); err == nil {
		return ErrExists
	} else if !isNoSuchKey(err) {
		return err
	}

	doc.Status = doc.History[len(doc.History)-1].Status
	doc.AssignedUnits = nonNil(doc.AssignedUnits)
	return s.put(ctx, doc)
}

func (s *objectStore) Append(ctx context.Context, orderID string, e Entry) error {
	doc, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	doc.append(e)
	return s.put(ctx, doc)
}

func (s *objectStore) AssignUnits(ctx context.Context, orderID string, keys []string) error {
	doc, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	doc.AssignedUnits = nonNil(keys)
	return s.put(ctx, doc)
}

func (s *objectStore) Get(ctx context.Context, orderID string) (*Document, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(orderID), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var doc Document
	if err := json.NewDecoder(obj).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func isNoSuchKey(err error) bool {
	var er minio.ErrorResponse
	return errors.As(err, &er) && er.Code == minio.NoSuchKey
}

func (s *objectStore) put(ctx context.Context, doc *Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.key(doc.OrderID), bytes.NewReader(b), int64(len(b)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}
