package access

import (
	"testing"
	"time"
)

func TestDetector_ThresholdFlagsUser(t *testing.T) {
	config := DetectorConfig{
		Threshold:       3,
		Window:          time.Minute,
		CleanupInterval: time.Hour,
	}
	d := NewDetector(config)
	defer d.Stop()

	userID := "user-1"

	if d.IsSuspicious(userID) {
		t.Error("IsSuspicious() = true before any denials")
	}

	d.RecordDenial(userID)
	d.RecordDenial(userID)
	if d.IsSuspicious(userID) {
		t.Error("IsSuspicious() = true after 2 denials (threshold is 3)")
	}

	d.RecordDenial(userID)
	if !d.IsSuspicious(userID) {
		t.Error("IsSuspicious() = false after 3 denials")
	}
}

func TestDetector_WindowExpiry(t *testing.T) {
	config := DetectorConfig{
		Threshold:       1,
		Window:          50 * time.Millisecond,
		CleanupInterval: time.Hour,
	}
	d := NewDetector(config)
	defer d.Stop()

	d.RecordDenial("user-1")
	if !d.IsSuspicious("user-1") {
		t.Fatal("IsSuspicious() = false immediately after denial")
	}

	time.Sleep(60 * time.Millisecond)

	if d.IsSuspicious("user-1") {
		t.Error("IsSuspicious() = true after window expired")
	}

	// A denial after expiry starts a fresh window.
	d.RecordDenial("user-1")
	if !d.IsSuspicious("user-1") {
		t.Error("IsSuspicious() = false after fresh denial")
	}
}

func TestDetector_SuspiciousUsers(t *testing.T) {
	config := DetectorConfig{
		Threshold:       2,
		Window:          time.Minute,
		CleanupInterval: time.Hour,
	}
	d := NewDetector(config)
	defer d.Stop()

	d.RecordDenial("over")
	d.RecordDenial("over")
	d.RecordDenial("under")

	users := d.SuspiciousUsers()
	if len(users) != 1 || users[0] != "over" {
		t.Errorf("SuspiciousUsers() = %v, want [over]", users)
	}
}

func TestDetector_UsersTrackedIndependently(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	defer d.Stop()

	for i := 0; i < DefaultDenialThreshold; i++ {
		d.RecordDenial("noisy")
	}
	d.RecordDenial("quiet")

	if !d.IsSuspicious("noisy") {
		t.Error("noisy user should be flagged")
	}
	if d.IsSuspicious("quiet") {
		t.Error("quiet user should not be flagged")
	}
}
