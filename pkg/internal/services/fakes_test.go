package services

import (
	"context"
	"errors"
	"sync"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
	"gorm.io/gorm"
)

type memoryRepository struct {
	mu sync.Mutex

	tickets     map[uint]models.Ticket
	attachments map[uint]models.Attachment
	quarantine  []models.QuarantineRecord
	logs        []models.UploadLogEntry
	replicas    []models.AttachmentReplica

	failCreate bool
	nextID     uint
}

func newMemoryRepository(ticketIDs ...uint) *memoryRepository {
	repo := &memoryRepository{
		tickets:     map[uint]models.Ticket{},
		attachments: map[uint]models.Attachment{},
	}
	for _, id := range ticketIDs {
		repo.tickets[id] = models.Ticket{BaseModel: models.BaseModel{ID: id}, Subject: "printer on fire"}
	}
	return repo
}

func (v *memoryRepository) id() uint {
	v.nextID++
	return v.nextID
}

func (v *memoryRepository) FindTicket(_ context.Context, id uint) (models.Ticket, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ticket, ok := v.tickets[id]
	if !ok {
		return ticket, gorm.ErrRecordNotFound
	}
	return ticket, nil
}

func (v *memoryRepository) CreateAttachment(_ context.Context, attachment *models.Attachment) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failCreate {
		return errors.New("database is gone")
	}
	attachment.ID = v.id()
	v.attachments[attachment.ID] = *attachment
	return nil
}

func (v *memoryRepository) CreateQuarantinedAttachment(_ context.Context, attachment *models.Attachment, record *models.QuarantineRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failCreate {
		return errors.New("database is gone")
	}
	attachment.ID = v.id()
	v.attachments[attachment.ID] = *attachment
	v.quarantine = append(v.quarantine, *record)
	return nil
}

func (v *memoryRepository) FindAttachment(_ context.Context, id uint) (models.Attachment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	attachment, ok := v.attachments[id]
	if !ok {
		return attachment, gorm.ErrRecordNotFound
	}
	return attachment, nil
}

func (v *memoryRepository) ListAttachments(_ context.Context, ticketID uint, take, offset int) ([]models.Attachment, int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []models.Attachment
	for id := uint(1); id <= v.nextID; id++ {
		if item, ok := v.attachments[id]; ok && item.TicketID == ticketID {
			out = append(out, item)
		}
	}
	count := int64(len(out))
	if offset >= len(out) {
		return nil, count, nil
	}
	out = out[offset:]
	if take < len(out) {
		out = out[:take]
	}
	return out, count, nil
}

func (v *memoryRepository) DeleteAttachment(_ context.Context, id uint) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.attachments[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(v.attachments, id)
	return nil
}

func (v *memoryRepository) ListQuarantine(_ context.Context, take, offset int) ([]models.QuarantineRecord, int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.quarantine
	count := int64(len(out))
	if offset >= len(out) {
		return nil, count, nil
	}
	out = out[offset:]
	if take < len(out) {
		out = out[:take]
	}
	return out, count, nil
}

func (v *memoryRepository) AppendUploadLog(_ context.Context, entry *models.UploadLogEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry.ID = uint(len(v.logs) + 1)
	v.logs = append(v.logs, *entry)
	return nil
}

func (v *memoryRepository) CreateReplica(_ context.Context, replica *models.AttachmentReplica) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	replica.ID = v.id()
	v.replicas = append(v.replicas, *replica)
	return nil
}

func (v *memoryRepository) UpdateReplica(_ context.Context, replica *models.AttachmentReplica) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for idx := range v.replicas {
		if v.replicas[idx].ID == replica.ID {
			v.replicas[idx] = *replica
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (v *memoryRepository) ListReplicas(_ context.Context, attachmentID uint) ([]models.AttachmentReplica, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []models.AttachmentReplica
	for _, replica := range v.replicas {
		if replica.AttachmentID == attachmentID {
			out = append(out, replica)
		}
	}
	return out, nil
}

func (v *memoryRepository) ListReplicasByStatus(_ context.Context, status string, limit int) ([]models.AttachmentReplica, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []models.AttachmentReplica
	for _, replica := range v.replicas {
		if replica.Status == status && len(out) < limit {
			replica.Attachment = v.attachments[replica.AttachmentID]
			out = append(out, replica)
		}
	}
	return out, nil
}

func (v *memoryRepository) DeleteReplicas(_ context.Context, attachmentID uint) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var kept []models.AttachmentReplica
	for _, replica := range v.replicas {
		if replica.AttachmentID != attachmentID {
			kept = append(kept, replica)
		}
	}
	v.replicas = kept
	return nil
}

func (v *memoryRepository) logsWithStatus(status models.UploadLogStatus) []models.UploadLogEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []models.UploadLogEntry
	for _, entry := range v.logs {
		if entry.Status == status {
			out = append(out, entry)
		}
	}
	return out
}

// memorySettings stores values as JSON like the settings table does.
type memorySettings struct {
	values map[string]string
	err    error
}

func newMemorySettings(values map[string]any) *memorySettings {
	out := &memorySettings{values: map[string]string{}}
	for key, val := range values {
		raw, _ := jsoniter.MarshalToString(val)
		out.values[key] = raw
	}
	return out
}

func (v *memorySettings) GetSetting(_ context.Context, key string, out any) (bool, error) {
	if v.err != nil {
		return false, v.err
	}
	raw, ok := v.values[key]
	if !ok {
		return false, nil
	}
	if err := jsoniter.UnmarshalFromString(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (v *memorySettings) SetSetting(_ context.Context, key string, value any) error {
	raw, err := jsoniter.MarshalToString(value)
	if err != nil {
		return err
	}
	v.values[key] = raw
	return nil
}

type fakeScanner struct {
	mu     sync.Mutex
	calls  int
	result ScanResult
	block  chan struct{}
}

func (v *fakeScanner) Scan(ctx context.Context, _ string) ScanResult {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	if v.block != nil {
		select {
		case <-v.block:
		case <-ctx.Done():
		}
	}
	return v.result
}

func (v *fakeScanner) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeActivity struct {
	recorded []models.TicketActivity
	err      error
}

func (v *fakeActivity) RecordActivity(_ context.Context, activity models.TicketActivity) error {
	v.recorded = append(v.recorded, activity)
	return v.err
}
