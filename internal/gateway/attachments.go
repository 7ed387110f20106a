package gateway

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tencentyun-labs/cognigate/internal/config"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// AttachmentResolver turns the attachment ids a client sends on an inbound
// "message" frame (§6) into presigned URLs for citation rendering. It never
// writes objects: ingestion owns the bucket, the gateway only reads it. An
// empty Endpoint leaves resolution disabled, and every id comes back with
// AttachmentRef.Error set rather than failing the query.
type AttachmentResolver struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewAttachmentResolver returns a disabled resolver when cfg.Endpoint is
// empty so the gateway can run without object storage configured.
func NewAttachmentResolver(cfg config.AttachmentsConfig) *AttachmentResolver {
	if cfg.Endpoint == "" {
		return &AttachmentResolver{}
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.Warn(context.Background(), "gateway: attachment resolver disabled", map[string]interface{}{"error": err.Error()})
		return &AttachmentResolver{}
	}
	return &AttachmentResolver{client: client, bucket: cfg.Bucket, expiry: cfg.URLExpiry()}
}

// Resolve looks up each id as an object key in the attachments bucket,
// returning one AttachmentRef per id in the same order. A lookup failure is
// carried on that ref's Error field rather than aborting the others.
func (a *AttachmentResolver) Resolve(ctx context.Context, ids []string) []types.AttachmentRef {
	refs := make([]types.AttachmentRef, 0, len(ids))
	for _, id := range ids {
		if a.client == nil {
			refs = append(refs, types.AttachmentRef{ID: id, Error: "attachment storage not configured"})
			continue
		}
		info, err := a.client.StatObject(ctx, a.bucket, id, minio.StatObjectOptions{})
		if err != nil {
			refs = append(refs, types.AttachmentRef{ID: id, Error: "attachment not found"})
			continue
		}
		url, err := a.client.PresignedGetObject(ctx, a.bucket, id, a.expiry, nil)
		if err != nil {
			refs = append(refs, types.AttachmentRef{ID: id, Error: "failed to generate attachment url"})
			continue
		}
		refs = append(refs, types.AttachmentRef{
			ID: id, URL: url.String(), ContentType: info.ContentType, SizeBytes: info.Size,
		})
	}
	return refs
}
