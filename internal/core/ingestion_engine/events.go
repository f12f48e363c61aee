package ingestion_engine

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// BlobCreated announces that an upload was staged in object storage.
//
// UserID and DocumentID repeat the blob's ownership metadata so the status row
// can still be failed when the blob itself is gone or never gets processed.
type BlobCreated struct {
	Bucket     string `json:"bucket"`
	Key        string `json:"key"`
	UserID     string `json:"userId,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
}

// NewPubSub returns the in-process transport for BlobCreated events.
func NewPubSub(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger),
	)
}

func encodeEvent(evt BlobCreated) (*message.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode blob event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("key", evt.Key)
	return msg, nil
}

func decodeEvent(msg *message.Message) (BlobCreated, error) {
	var evt BlobCreated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return evt, fmt.Errorf("decode blob event %s: %w", msg.UUID, err)
	}
	if evt.Bucket == "" || evt.Key == "" {
		return evt, fmt.Errorf("blob event %s: bucket and key are required", msg.UUID)
	}
	return evt, nil
}
