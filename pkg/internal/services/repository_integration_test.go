package services

import (
	"context"
	"os"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/cache"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/database"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// setupTestDB starts a postgres container and migrates the schema into it.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("helpdesk_test"),
		postgres.WithUsername("helpdesk"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Unable to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open(dsn, "helpdesk_", false)
	require.NoError(t, err)
	require.NoError(t, database.RunMigration(db))
	return db
}

func TestGormRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()

	ticket := models.Ticket{Subject: "VPN keeps dropping"}
	require.NoError(t, db.Create(&ticket).Error)

	_, err := repo.FindTicket(ctx, ticket.ID+100)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	attachment := models.Attachment{
		TicketID:   ticket.ID,
		FileName:   "log.txt",
		FilePath:   "1-abc-log.txt",
		MimeType:   "text/plain",
		ScanStatus: models.ScanStatusClean,
	}
	require.NoError(t, repo.CreateAttachment(ctx, &attachment))

	found, err := repo.FindAttachment(ctx, attachment.ID)
	require.NoError(t, err)
	assert.Equal(t, "1-abc-log.txt", found.FilePath)

	list, count, err := repo.ListAttachments(ctx, ticket.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Len(t, list, 1)

	record := models.QuarantineRecord{
		ID:             "a4f2c9d1-0000-4000-8000-000000000001",
		FileName:       "cat.png",
		OriginalPath:   "2-def-cat.png",
		QuarantinePath: models.QuarantinePathPrefix + "2-def-cat.png",
		Reason:         models.QuarantineReasonMimeMismatch,
		TicketID:       ticket.ID,
	}
	quarantined := models.Attachment{
		TicketID:     ticket.ID,
		FileName:     "cat.png",
		FilePath:     record.QuarantinePath,
		ScanStatus:   models.ScanStatusQuarantined,
		QuarantineID: lo.ToPtr(record.ID),
	}
	require.NoError(t, repo.CreateQuarantinedAttachment(ctx, &quarantined, &record))

	// A duplicate record id rolls the attachment back too.
	duplicate := quarantined
	duplicate.ID = 0
	duplicateRecord := record
	assert.Error(t, repo.CreateQuarantinedAttachment(ctx, &duplicate, &duplicateRecord))
	_, count, err = repo.ListAttachments(ctx, ticket.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	records, count, err := repo.ListQuarantine(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, models.QuarantineReasonMimeMismatch, records[0].Reason)

	require.NoError(t, repo.AppendUploadLog(ctx, &models.UploadLogEntry{
		FileName:     "log.txt",
		Status:       models.UploadLogSuccess,
		TicketID:     ticket.ID,
		AttachmentID: lo.ToPtr(attachment.ID),
	}))

	replica := models.AttachmentReplica{Status: models.ReplicaStatusError, AttachmentID: attachment.ID, ObjectKey: "x"}
	require.NoError(t, repo.CreateReplica(ctx, &replica))
	failed, err := repo.ListReplicasByStatus(ctx, models.ReplicaStatusError, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "log.txt", failed[0].Attachment.FileName)
	require.NoError(t, repo.DeleteReplicas(ctx, attachment.ID))

	require.NoError(t, repo.DeleteAttachment(ctx, attachment.ID))
	assert.ErrorIs(t, repo.DeleteAttachment(ctx, attachment.ID), gorm.ErrRecordNotFound)
}

func TestDatabaseSettings(t *testing.T) {
	db := setupTestDB(t)
	store, err := cache.New()
	require.NoError(t, err)
	settings := NewCachedSettings(NewDatabaseSettings(db), store)
	ctx := context.Background()

	policy := LoadUploadPolicy(ctx, settings)
	assert.Equal(t, NewUploadPolicy(), policy)

	require.NoError(t, settings.SetSetting(ctx, SettingMaxFileSize, 5))
	require.NoError(t, settings.SetSetting(ctx, SettingAllowedFileTypes, []string{"png"}))
	require.NoError(t, settings.SetSetting(ctx, SettingScanEnabled, true))

	policy = LoadUploadPolicy(ctx, settings)
	assert.Equal(t, int64(5*1024*1024), policy.MaxFileSizeBytes)
	assert.Equal(t, []string{"png"}, policy.AllowedExtensions)
	assert.True(t, policy.ScanEnabled)

	require.NoError(t, settings.SetSetting(ctx, SettingMaxFileSize, 6))
	var size int64
	found, err := settings.GetSetting(ctx, SettingMaxFileSize, &size)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(6), size)
}

func TestDatabaseActivity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ticket := models.Ticket{Subject: "Monitor flickers"}
	require.NoError(t, db.Create(&ticket).Error)

	recorder := MultiActivity{NewDatabaseActivity(db)}
	require.NoError(t, recorder.RecordActivity(ctx, models.TicketActivity{
		TicketID: ticket.ID,
		Type:     models.ActivityFileUploaded,
		Metadata: map[string]any{"file_name": "a.png"},
	}))

	var activities []models.TicketActivity
	require.NoError(t, db.Where("ticket_id = ?", ticket.ID).Find(&activities).Error)
	require.Len(t, activities, 1)
	assert.Equal(t, "a.png", activities[0].Metadata["file_name"])
}
