package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"swimnotify/internal/security"

	"github.com/sirupsen/logrus"
)

// snapshot is the on-disk layout of the roster export
type snapshot struct {
	Students []Student `json:"students"`
	Coaches  []Coach   `json:"coaches"`
	Sessions []Session `json:"sessions"`
	Payments []Payment `json:"payments"`
}

// FileSource serves a JSON export of the academy database. The file is
// re-read when its modification time changes.
type FileSource struct {
	path   string
	logger logrus.FieldLogger

	mu      sync.Mutex
	modTime time.Time
	data    *snapshot
}

func NewFileSource(path string, logger logrus.FieldLogger) (*FileSource, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid roster path: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fs := &FileSource{path: path, logger: logger}
	if _, err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileSource) load() (*snapshot, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	info, err := os.Stat(fs.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat roster file: %w", err)
	}
	if fs.data != nil && info.ModTime().Equal(fs.modTime) {
		return fs.data, nil
	}

	raw, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	var data snapshot
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}

	fs.data = &data
	fs.modTime = info.ModTime()
	fs.logger.WithFields(logrus.Fields{
		"students": len(data.Students),
		"coaches":  len(data.Coaches),
		"sessions": len(data.Sessions),
	}).Debug("Roster loaded")
	return fs.data, nil
}

// Students returns active students
func (fs *FileSource) Students(ctx context.Context) ([]Student, error) {
	data, err := fs.load()
	if err != nil {
		return nil, err
	}
	out := make([]Student, 0, len(data.Students))
	for _, s := range data.Students {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (fs *FileSource) Coaches(ctx context.Context) ([]Coach, error) {
	data, err := fs.load()
	if err != nil {
		return nil, err
	}
	return append([]Coach(nil), data.Coaches...), nil
}

// SessionsBetween returns sessions starting in [from, to), ordered by start
func (fs *FileSource) SessionsBetween(ctx context.Context, from, to time.Time) ([]Session, error) {
	data, err := fs.load()
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, s := range data.Sessions {
		if !s.Start.Before(from) && s.Start.Before(to) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// OutstandingPayments returns unpaid invoices ordered by due date
func (fs *FileSource) OutstandingPayments(ctx context.Context) ([]Payment, error) {
	data, err := fs.load()
	if err != nil {
		return nil, err
	}
	var out []Payment
	for _, p := range data.Payments {
		if !p.Paid {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}
