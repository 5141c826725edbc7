package services

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// ObjectStore is the subset of the S3 client the replicator needs.
type ObjectStore interface {
	FPutObject(ctx context.Context, bucket, key, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error)
}

func NewS3Client(dest models.S3Destination) (*minio.Client, error) {
	client, err := minio.New(dest.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(dest.SecretID, dest.SecretKey, ""),
		Secure: dest.EnableSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to configure s3 client: %v", err)
	}
	return client, nil
}

// Replicator copies clean attachments to an S3 destination in the
// background. Quarantined files never reach it.
type Replicator struct {
	Repository  ReplicaRepository
	Storage     *LocalStorage
	Destination models.S3Destination
	Client      ObjectStore

	queue chan models.AttachmentReplica
}

func NewReplicator(repo ReplicaRepository, storage *LocalStorage, dest models.S3Destination, client ObjectStore, queueSize int) *Replicator {
	return &Replicator{
		Repository:  repo,
		Storage:     storage,
		Destination: dest,
		Client:      client,
		queue:       make(chan models.AttachmentReplica, queueSize),
	}
}

func (v *Replicator) objectKey(attachment models.Attachment) string {
	return path.Join(v.Destination.Path, attachment.FilePath)
}

// Enqueue creates a pending replica and hands it to the workers. When the
// queue is full the replica is marked errored and left to the retry job.
func (v *Replicator) Enqueue(ctx context.Context, attachment models.Attachment) {
	if attachment.IsQuarantined() {
		return
	}

	replica := models.AttachmentReplica{
		Status:       models.ReplicaStatusPending,
		Destination:  v.Destination.Label,
		ObjectKey:    v.objectKey(attachment),
		AttachmentID: attachment.ID,
	}
	if err := v.Repository.CreateReplica(ctx, &replica); err != nil {
		log.Error().Err(err).Uint("attachment", attachment.ID).Msg("An error occurred when creating replica record...")
		return
	}
	replica.Attachment = attachment

	select {
	case v.queue <- replica:
	default:
		replica.Status = models.ReplicaStatusError
		_ = v.Repository.UpdateReplica(ctx, &replica)
		log.Warn().Uint("attachment", attachment.ID).Msg("Replica queue is full, deferred to the retry task...")
	}
}

func (v *Replicator) StartConsumeReplicaTask(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-v.queue:
			start := time.Now()
			if err := v.replicate(ctx, task); err != nil {
				log.Error().Err(err).Uint("attachment", task.AttachmentID).Msg("A replica task failed...")
			} else {
				log.Info().Dur("elapsed", time.Since(start)).Uint("attachment", task.AttachmentID).Msg("A replica task was completed.")
			}
		}
	}
}

func (v *Replicator) replicate(ctx context.Context, replica models.AttachmentReplica) error {
	source, err := v.Storage.ServePath(replica.Attachment.FilePath)
	if err == nil {
		_, err = v.Client.FPutObject(ctx, v.Destination.Bucket, replica.ObjectKey, source, minio.PutObjectOptions{
			ContentType:          replica.Attachment.MimeType,
			SendContentMd5:       false,
			DisableContentSha256: true,
		})
	}

	replica.Status = ReplicaStatusOf(err)
	replicationsTotal.WithLabelValues(replica.Status).Inc()
	if updateErr := v.Repository.UpdateReplica(ctx, &replica); updateErr != nil {
		log.Error().Err(updateErr).Uint("replica", replica.ID).Msg("An error occurred when updating replica status...")
	}
	if err != nil {
		return fmt.Errorf("unable to upload file to s3: %v", err)
	}
	return nil
}

func ReplicaStatusOf(err error) string {
	if err != nil {
		return models.ReplicaStatusError
	}
	return models.ReplicaStatusActive
}

// RetryFailedReplicas requeues errored replicas, limited to what the queue
// currently has room for.
func (v *Replicator) RetryFailedReplicas(ctx context.Context) {
	room := cap(v.queue) - len(v.queue)
	if room <= 0 {
		return
	}

	replicas, err := v.Repository.ListReplicasByStatus(ctx, models.ReplicaStatusError, room)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when listing failed replicas...")
		return
	}

	var count int
	for _, replica := range replicas {
		if replica.Attachment.ID == 0 || replica.Attachment.IsQuarantined() {
			continue
		}
		replica.Status = models.ReplicaStatusPending
		if err := v.Repository.UpdateReplica(ctx, &replica); err != nil {
			continue
		}
		select {
		case v.queue <- replica:
			count++
		default:
		}
	}
	log.Info().Int("count", count).Msg("Requeued failed replicas.")
}

// RemoveAll deletes every replica object of an attachment and their rows.
func (v *Replicator) RemoveAll(ctx context.Context, attachmentID uint) error {
	replicas, err := v.Repository.ListReplicas(ctx, attachmentID)
	if err != nil {
		return err
	}
	for _, replica := range replicas {
		if replica.Status != models.ReplicaStatusActive {
			continue
		}
		if err := v.Client.RemoveObject(ctx, v.Destination.Bucket, replica.ObjectKey, minio.RemoveObjectOptions{}); err != nil {
			log.Warn().Err(err).Uint("replica", replica.ID).Msg("Unable to remove replica object, skipped...")
		}
	}
	return v.Repository.DeleteReplicas(ctx, attachmentID)
}

// PresignReplica returns a temporary URL for the active replica of an
// attachment.
func (v *Replicator) PresignReplica(ctx context.Context, attachment models.Attachment) (string, error) {
	if attachment.IsQuarantined() {
		return "", ErrQuarantined
	}

	replicas, err := v.Repository.ListReplicas(ctx, attachment.ID)
	if err != nil {
		return "", err
	}
	for _, replica := range replicas {
		if replica.Status != models.ReplicaStatusActive {
			continue
		}
		uri, err := v.Client.PresignedGetObject(ctx, v.Destination.Bucket, replica.ObjectKey, 60*time.Minute, nil)
		if err != nil {
			return "", err
		}
		return uri.String(), nil
	}
	return "", fmt.Errorf("no active replica")
}
