package lib

import (
	"context"
	"io"
	"os"
	"path"

	"pbs/src/config"
	awslib "pbs/src/lib/aws"
)

// ReceiptStore persists uploaded receipt images under a caller-chosen name
// and returns the stored reference recorded on the booking.
type ReceiptStore interface {
	Put(ctx context.Context, name, contentType string, body io.Reader) (string, error)
}

var receiptStore ReceiptStore

func GetReceiptStore() ReceiptStore {
	if receiptStore != nil {
		return receiptStore
	}
	app := config.GetApp()
	if app.ReceiptsBucket != "" {
		receiptStore = &S3ReceiptStore{Bucket: app.ReceiptsBucket}
	} else {
		receiptStore = &DiskReceiptStore{Dir: app.UploadDir}
	}
	return receiptStore
}

// NewReceiptStore replaces the receipt store, used by tests
func NewReceiptStore(s ReceiptStore) ReceiptStore {
	receiptStore = s
	return receiptStore
}

type S3ReceiptStore struct {
	Bucket string
}

func (s *S3ReceiptStore) Put(ctx context.Context, name, contentType string, body io.Reader) (string, error) {
	if err := awslib.S3UploadReceipt(ctx, s.Bucket, name, contentType, body); err != nil {
		return "", err
	}
	return name, nil
}

// DiskReceiptStore keeps receipts on the local filesystem, served back via
// the /uploads static route.
type DiskReceiptStore struct {
	Dir string
}

func (d *DiskReceiptStore) Put(ctx context.Context, name, contentType string, body io.Reader) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", err
	}
	file, err := os.Create(path.Join(d.Dir, name))
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := io.Copy(file, body); err != nil {
		return "", err
	}
	return name, nil
}
