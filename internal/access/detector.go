package access

import (
	"sync"
	"time"
)

// Detection thresholds
const (
	DefaultDenialThreshold = 10
	DefaultDenialWindow    = 15 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// DetectorConfig holds suspicious-pattern detector configuration.
type DetectorConfig struct {
	Threshold       int
	Window          time.Duration
	CleanupInterval time.Duration
}

// DefaultDetectorConfig returns the default detector configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Threshold:       DefaultDenialThreshold,
		Window:          DefaultDenialWindow,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// denialInfo tracks denied access attempts for a user.
type denialInfo struct {
	count       int
	firstDenial time.Time
}

// Detector flags users with an unusual number of access denials in a time
// window. Read-only: it never blocks a request itself.
type Detector struct {
	mu       sync.RWMutex
	denials  map[string]*denialInfo
	config   DetectorConfig
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDetector creates a Detector and starts its cleanup goroutine.
func NewDetector(config DetectorConfig) *Detector {
	d := &Detector{
		denials: make(map[string]*denialInfo),
		config:  config,
		stopCh:  make(chan struct{}),
	}

	go d.cleanup()

	return d
}

func (d *Detector) cleanup() {
	ticker := time.NewTicker(d.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.removeExpired()
		}
	}
}

func (d *Detector) removeExpired() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for userID, info := range d.denials {
		if now.Sub(info.firstDenial) > d.config.Window {
			delete(d.denials, userID)
		}
	}
}

// Stop stops the cleanup goroutine.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

// RecordDenial records a denied access attempt for the user.
func (d *Detector) RecordDenial(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, exists := d.denials[userID]
	if !exists || time.Since(info.firstDenial) > d.config.Window {
		d.denials[userID] = &denialInfo{
			count:       1,
			firstDenial: time.Now(),
		}
		return
	}

	info.count++
}

// IsSuspicious reports whether the user exceeded the denial threshold
// within the window.
func (d *Detector) IsSuspicious(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info, exists := d.denials[userID]
	if !exists {
		return false
	}
	if time.Since(info.firstDenial) > d.config.Window {
		return false
	}
	return info.count >= d.config.Threshold
}

// SuspiciousUsers returns every user currently over the threshold.
func (d *Detector) SuspiciousUsers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	var users []string
	for userID, info := range d.denials {
		if now.Sub(info.firstDenial) <= d.config.Window && info.count >= d.config.Threshold {
			users = append(users, userID)
		}
	}
	return users
}
