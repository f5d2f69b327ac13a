package migrate

import (
	"testing"

	"github.com/brightclass/video-service/pkg/models"
)

func TestSuccessUpdate_RecordsAttemptCount(t *testing.T) {
	managed := &models.ManagedVideo{UploadID: "up-1", Status: models.ManagedPreparing}

	// Second attempt succeeding after one recorded failure.
	update := successUpdate(managed, 2, BatchOptions{})

	if update.Migration == nil {
		t.Fatal("Migration state not set")
	}
	if update.Migration.AttemptCount != 2 {
		t.Errorf("AttemptCount = %d, want 2", update.Migration.AttemptCount)
	}
	if update.Migration.LastError != "" {
		t.Errorf("LastError = %q, want cleared", update.Migration.LastError)
	}
	if update.VideoProvider == nil || *update.VideoProvider != models.ProviderManaged {
		t.Error("VideoProvider should switch to managed")
	}
	if update.Managed != managed {
		t.Error("Managed fields not carried into the update")
	}
}

func TestSuccessUpdate_BackupRetention(t *testing.T) {
	managed := &models.ManagedVideo{UploadID: "up-1"}

	t.Run("backup kept", func(t *testing.T) {
		update := successUpdate(managed, 1, BatchOptions{KeepSelfBackup: true})

		if !update.Migration.KeptSelfBackup {
			t.Error("KeptSelfBackup = false, want true")
		}
		if update.VideoURL != nil || update.HLSURL != nil || update.ObjectKey != nil {
			t.Error("self-hosted fields should be left untouched when keeping the backup")
		}
	})

	t.Run("backup discarded", func(t *testing.T) {
		update := successUpdate(managed, 1, BatchOptions{})

		if update.Migration.KeptSelfBackup {
			t.Error("KeptSelfBackup = true, want false")
		}
		for name, field := range map[string]*string{
			"VideoURL":  update.VideoURL,
			"HLSURL":    update.HLSURL,
			"ObjectKey": update.ObjectKey,
		} {
			if field == nil || *field != "" {
				t.Errorf("%s should be cleared when discarding the backup", name)
			}
		}
	})
}
