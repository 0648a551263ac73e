package files

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"

	pkgpubsub "github.com/taskfolio/taskfolio-backend/pkg/pubsub"
)

// ScanRequest is the payload published for every registered upload so the
// scanning worker can pick the object up from storage.
type ScanRequest struct {
	FileID      string   `json:"fileId"`
	ProjectID   string   `json:"projectId"`
	StoragePath string   `json:"storagePath"`
	MimeType    string   `json:"mimeType"`
	FileSize    int64    `json:"fileSize"`
	UserID      string   `json:"userId"`
	Tags        []string `json:"tags,omitempty"`
}

// ScanNotifier requests a malware scan for an uploaded file.
type ScanNotifier interface {
	NotifyScan(ctx context.Context, req ScanRequest) error
}

type pubsubNotifier struct {
	publisher *pubsub.Publisher
}

// NewScanNotifier builds a notifier backed by the configured scan topic.
func NewScanNotifier(client *pkgpubsub.Client) (ScanNotifier, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	publisher := client.ScanPublisher()
	if publisher == nil {
		return nil, errors.New("scan topic is not configured")
	}
	return &pubsubNotifier{publisher: publisher}, nil
}

func (n *pubsubNotifier) NotifyScan(ctx context.Context, req ScanRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	result := n.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"type": "file.scan_requested"},
	})
	_, err = result.Get(ctx)
	return err
}
