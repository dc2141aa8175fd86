package memory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/harvestbot/harvester/pkg/core"
	"github.com/harvestbot/harvester/pkg/streaming"
)

// journalName builds the file name for a session journal
func journalName(s *core.Session, compress bool) string {
	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("session_%s_%s.jsonl", s.StartedAt.UTC().Format("20060102_150405"), id)
	if compress {
		name += ".zst"
	}
	return name
}

// writeJournal writes start_session, every tick followed by its assignments,
// then end_session, one envelope per line. Caller holds b.mu.
func (b *Backend) writeJournal() (string, error) {
	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(b.cfg.OutputDir, journalName(b.session, b.cfg.CompressOutput))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create journal: %w", err)
	}
	defer f.Close()

	var dst io.Writer = f
	var enc *zstd.Encoder
	if b.cfg.CompressOutput {
		enc, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return "", fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		dst = enc
	}
	w := bufio.NewWriterSize(dst, 128*1024)

	if err := b.writeEntries(w); err != nil {
		if enc != nil {
			_ = enc.Close()
		}
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush journal: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return "", fmt.Errorf("failed to finish zstd stream: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync journal: %w", err)
	}
	return path, nil
}

func (b *Backend) writeEntries(w *bufio.Writer) error {
	line := func(msgType string, payload any) error {
		data, err := streaming.Marshal(msgType, payload)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", msgType, err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.WriteByte('\n')
	}

	if err := line(streaming.TypeStartSession, streaming.StartSessionPayload{Session: b.session}); err != nil {
		return err
	}

	var finalScore float64
	for _, e := range b.ticks {
		if err := line(streaming.TypeTick, e.Tick); err != nil {
			return err
		}
		for _, a := range e.Assignments {
			if err := line(streaming.TypeAssignment, a); err != nil {
				return err
			}
		}
		finalScore = e.Tick.Score
	}
	for _, a := range b.orphans {
		if err := line(streaming.TypeAssignment, a); err != nil {
			return err
		}
	}

	return line(streaming.TypeEndSession, streaming.EndSessionPayload{
		SessionID:   b.session.ID,
		Ticks:       len(b.ticks),
		Assignments: b.total,
		FinalScore:  finalScore,
	})
}
