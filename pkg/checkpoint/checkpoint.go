package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"time"

	"fedicaption/pkg/logger"
)

const currentVersion = 1

// Checkpoint is the progress of one caption batch.
type Checkpoint struct {
	Batch    string `json:"batch"`
	Instance string `json:"instance"`
	// Captioned maps media id to the status that owns it.
	Captioned      map[string]string `json:"captioned"`
	Failed         map[string]string `json:"failed,omitempty"`
	TotalJobs      int               `json:"total_jobs"`
	TotalCaptioned int               `json:"total_captioned"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Version        int               `json:"version"`
}

// IsCaptioned reports whether mediaID was captioned in an earlier run.
func (cp *Checkpoint) IsCaptioned(mediaID string) bool {
	_, ok := cp.Captioned[mediaID]
	return ok
}

// Manager persists one checkpoint file. It is safe for concurrent use by
// the caption workers.
type Manager struct {
	mu             sync.Mutex
	checkpointPath string
	current        *Checkpoint
	logger         logger.Logger
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewManager creates a manager for the named batch in the data directory.
func NewManager(batch string) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}

	checkpointsDir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(checkpointsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	name := unsafeName.ReplaceAllString(batch, "_")
	return NewManagerAt(filepath.Join(checkpointsDir, name+".checkpoint.json")), nil
}

// NewManagerAt creates a manager for an explicit file path.
func NewManagerAt(path string) *Manager {
	return &Manager{
		checkpointPath: path,
		logger:         logger.GetLogger().WithField("component", "checkpoint"),
	}
}

// Path returns the checkpoint file location.
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a fresh checkpoint, replacing any existing one.
func (m *Manager) Create(batch, instance string, totalJobs int) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Batch:     batch,
		Instance:  instance,
		Captioned: make(map[string]string),
		Failed:    make(map[string]string),
		TotalJobs: totalJobs,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   currentVersion,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveLocked(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}
	m.current = cp

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"batch": batch,
		"path":  m.checkpointPath,
	})
	return cp, nil
}

// Load reads the checkpoint from disk. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version > currentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", cp.Version, currentVersion)
	}
	if cp.Captioned == nil {
		cp.Captioned = make(map[string]string)
	}
	if cp.Failed == nil {
		cp.Failed = make(map[string]string)
	}

	m.mu.Lock()
	m.current = &cp
	m.mu.Unlock()

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"batch":           cp.Batch,
		"total_captioned": cp.TotalCaptioned,
		"updated_at":      cp.UpdatedAt,
	})
	return &cp, nil
}

// LoadOrCreate resumes the existing checkpoint for batch or starts a new one.
func (m *Manager) LoadOrCreate(batch, instance string, totalJobs int) (*Checkpoint, error) {
	cp, err := m.Load()
	if err != nil {
		return nil, err
	}
	if cp != nil && cp.Batch == batch && cp.Instance == instance {
		m.mu.Lock()
		if totalJobs > cp.TotalJobs {
			cp.TotalJobs = totalJobs
		}
		m.mu.Unlock()
		return cp, nil
	}
	return m.Create(batch, instance, totalJobs)
}

// Save writes cp to disk atomically.
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(cp)
}

func (m *Manager) saveLocked(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"batch":           cp.Batch,
		"total_captioned": cp.TotalCaptioned,
	})
	return nil
}

// Delete removes the checkpoint file.
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// IsCaptioned reports whether the active checkpoint already holds mediaID.
func (m *Manager) IsCaptioned(mediaID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.IsCaptioned(mediaID)
}

// RecordCaption marks mediaID as captioned and persists the checkpoint.
func (m *Manager) RecordCaption(statusID, mediaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return fmt.Errorf("no active checkpoint")
	}
	if _, seen := m.current.Captioned[mediaID]; !seen {
		m.current.TotalCaptioned++
	}
	m.current.Captioned[mediaID] = statusID
	delete(m.current.Failed, mediaID)
	return m.saveLocked(m.current)
}

// RecordFailure remembers why mediaID failed. Failures are retried on resume.
func (m *Manager) RecordFailure(mediaID string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return fmt.Errorf("no active checkpoint")
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	m.current.Failed[mediaID] = msg
	return m.saveLocked(m.current)
}

// Info returns a summary of the stored checkpoint, or nil when none exists.
func (m *Manager) Info() (map[string]interface{}, error) {
	cp, err := m.Load()
	if err != nil || cp == nil {
		return nil, err
	}
	return map[string]interface{}{
		"batch":           cp.Batch,
		"instance":        cp.Instance,
		"total_jobs":      cp.TotalJobs,
		"total_captioned": cp.TotalCaptioned,
		"failed":          len(cp.Failed),
		"created_at":      cp.CreatedAt,
		"updated_at":      cp.UpdatedAt,
		"age":             time.Since(cp.UpdatedAt),
	}, nil
}

// Backup copies the checkpoint file next to itself with a .backup suffix.
func (m *Manager) Backup() error {
	if !m.Exists() {
		return nil
	}

	src, err := os.Open(m.checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(m.checkpointPath + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}

	m.logger.Debug("Checkpoint backed up")
	return nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "fedicaption")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "fedicaption")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "fedicaption")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "fedicaption")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
