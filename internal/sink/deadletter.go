package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dronefleet/orchestrator/internal/lock"
	"github.com/dronefleet/orchestrator/internal/logx"
	"github.com/dronefleet/orchestrator/internal/model"
	"github.com/dronefleet/orchestrator/internal/yamlutil"
)

// FileDeadLetterSink archives dead-lettered commands as one YAML file per
// entry under <dir>/dead_letters, grounded on the teacher's
// DeadLetterProcessor.archiveDeadLetter (same atomic-write-via-temp-file
// archive shape, generalized from per-queue-type archiving to a single
// DeadLetterCommand entry).
type FileDeadLetterSink struct {
	dir     string
	lockMap *lock.MutexMap
	log     *logx.Logger
}

// NewFileDeadLetterSink archives entries under dir/dead_letters, creating
// the directory on first use.
func NewFileDeadLetterSink(dir string, lockMap *lock.MutexMap, log *logx.Logger) *FileDeadLetterSink {
	if lockMap == nil {
		lockMap = lock.NewMutexMap()
	}
	if log == nil {
		log = logx.New(nil, "sink", logx.LevelInfo)
	}
	return &FileDeadLetterSink{dir: dir, lockMap: lockMap, log: log}
}

type archiveEntry struct {
	SchemaVersion  int                  `yaml:"schema_version"`
	FileType       string               `yaml:"file_type"`
	Entry          model.DeadLetterCommand `yaml:"entry"`
	DeadLetteredAt string               `yaml:"dead_lettered_at"`
}

// Publish archives entry to a file named by command id and timestamp, the
// same collision-avoidance shape as the teacher's archiveDeadLetter
// filenames. Per spec §7, sink failures are logged but never propagated to
// block the pipeline — callers should still inspect the error for metrics
// purposes, but must not treat it as fatal.
func (s *FileDeadLetterSink) Publish(ctx context.Context, entry model.DeadLetterCommand) error {
	archiveDir := filepath.Join(s.dir, "dead_letters")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create dead_letters dir: %w", err)
	}

	lockKey := "dead_letter:" + entry.CommandID
	s.lockMap.Lock(lockKey)
	defer s.lockMap.Unlock(lockKey)

	now := time.Now().UTC()
	archive := archiveEntry{
		SchemaVersion:  1,
		FileType:       "dead_letter",
		Entry:          entry,
		DeadLetteredAt: now.Format(time.RFC3339),
	}

	filename := fmt.Sprintf("%s_%s.yaml", now.Format("20060102T150405Z"), entry.CommandID)
	archivePath := filepath.Join(archiveDir, filename)

	if err := yamlutil.AtomicWrite(archivePath, archive); err != nil {
		s.log.Error("archive_dead_letter command=%s error=%v", entry.CommandID, err)
		return err
	}
	s.log.Warn("dead_letter command=%s reason=%s retry_count=%d", entry.CommandID, entry.Reason, entry.RetryCount)
	return nil
}
