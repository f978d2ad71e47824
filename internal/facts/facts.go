// Package facts provides fact-source implementations for the standalone
// server. Embedded deployments implement alerting.FactSource against
// their own course database instead.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/deptrack/deptrack/pkg/models"
)

// FileSource reads course facts from a JSON file. The file is re-read on
// every call so an operator can edit the fixture while the server runs.
type FileSource struct {
	path string

	mu sync.Mutex
}

// NewFileSource creates a FileSource for the given path and verifies the
// file parses.
func NewFileSource(path string) (*FileSource, error) {
	s := &FileSource{path: path}
	if _, err := s.CourseFacts(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// CourseFacts implements alerting.FactSource.
func (s *FileSource) CourseFacts(ctx context.Context) ([]models.CourseFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file: %w", err)
	}
	var facts []models.CourseFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("failed to parse facts file %s: %w", s.path, err)
	}
	return facts, nil
}

// LogDeviceWriter records mark-lost instructions in the log without
// touching any device inventory. It stands in for the host tracker's
// device layer when running standalone.
type LogDeviceWriter struct {
	log *slog.Logger
}

// NewLogDeviceWriter creates a LogDeviceWriter.
func NewLogDeviceWriter(log *slog.Logger) *LogDeviceWriter {
	return &LogDeviceWriter{log: log.With("component", "device_writer")}
}

// MarkLost implements alerting.DeviceWriter.
func (w *LogDeviceWriter) MarkLost(ctx context.Context, deviceID, courseID int) error {
	w.log.Info("would mark device lost", "device_id", deviceID, "course_id", courseID)
	return nil
}
