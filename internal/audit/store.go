// Package audit persists runs, conversation messages, review decisions and
// the per-document memory blob.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/storage"
	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// Trail is the audit trail of the engine.
type Trail interface {
	SaveRun(ctx context.Context, run *types.Run) error
	GetRun(ctx context.Context, filePath, runID string) (*types.Run, error)
	ListRuns(ctx context.Context, filePath string) ([]*types.Run, error)

	AppendMessage(ctx context.Context, msg *types.Message) error
	ListMessages(ctx context.Context, filePath string) ([]*types.Message, error)

	SaveDecision(ctx context.Context, d *types.Decision) error
	ListDecisions(ctx context.Context, filePath, runID string) ([]*types.Decision, error)

	// GetMemory returns an empty memory when none is stored.
	GetMemory(ctx context.Context, filePath string) (*types.Memory, error)
	SaveMemory(ctx context.Context, mem *types.Memory) error
}

// errStale aborts a write whose record is older than the stored one.
var errStale = errors.New("stale record")

// Store is the Trail backed by JSON files.
//
// Layout:
//
//	run/<doc>/<runID>.json
//	message/<doc>/<messageID>.json
//	decision/<doc>/<runID>/<changeID>.json
//	memory/<doc>.json
//
// where <doc> is the path-escaped document path.
type Store struct {
	storage *storage.Storage
}

var _ Trail = (*Store)(nil)

// NewStore creates a Store.
func NewStore(s *storage.Storage) *Store {
	return &Store{storage: s}
}

func docKey(filePath string) string {
	return url.PathEscape(filePath)
}

// SaveRun stores run unless a newer version is already stored.
func (s *Store) SaveRun(ctx context.Context, run *types.Run) error {
	var stored types.Run
	err := s.storage.Update(ctx, []string{"run", docKey(run.FilePath), run.ID}, &stored, func() error {
		if stored.ID != "" && stored.Version > run.Version {
			return errStale
		}
		stored = *run
		return nil
	})
	if errors.Is(err, errStale) {
		logging.Debug().Str("runID", run.ID).Int("version", run.Version).Msg("skipping stale run write")
		return nil
	}
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, filePath, runID string) (*types.Run, error) {
	var run types.Run
	if err := s.storage.Get(ctx, []string{"run", docKey(filePath), runID}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the runs of a document, oldest first.
func (s *Store) ListRuns(ctx context.Context, filePath string) ([]*types.Run, error) {
	runs := []*types.Run{}
	err := s.storage.Scan(ctx, []string{"run", docKey(filePath)}, func(key string, data json.RawMessage) error {
		var run types.Run
		if err := json.Unmarshal(data, &run); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("skipping unreadable run")
			return nil
		}
		runs = append(runs, &run)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].Time.Created != runs[j].Time.Created {
			return runs[i].Time.Created < runs[j].Time.Created
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *types.Message) error {
	if err := s.storage.Put(ctx, []string{"message", docKey(msg.FilePath), msg.ID}, msg); err != nil {
		return fmt.Errorf("append message %s: %w", msg.ID, err)
	}
	return nil
}

// ListMessages returns the conversation of a document in order.
func (s *Store) ListMessages(ctx context.Context, filePath string) ([]*types.Message, error) {
	msgs := []*types.Message{}
	err := s.storage.Scan(ctx, []string{"message", docKey(filePath)}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil
		}
		msgs = append(msgs, &msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Created != msgs[j].Created {
			return msgs[i].Created < msgs[j].Created
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

func (s *Store) SaveDecision(ctx context.Context, d *types.Decision) error {
	path := []string{"decision", docKey(d.FilePath), d.RunID, d.ChangeID}
	if err := s.storage.Put(ctx, path, d); err != nil {
		return fmt.Errorf("save decision %s: %w", d.ChangeID, err)
	}
	return nil
}

func (s *Store) ListDecisions(ctx context.Context, filePath, runID string) ([]*types.Decision, error) {
	out := []*types.Decision{}
	err := s.storage.Scan(ctx, []string{"decision", docKey(filePath), runID}, func(key string, data json.RawMessage) error {
		var d types.Decision
		if err := json.Unmarshal(data, &d); err != nil {
			return nil
		}
		out = append(out, &d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (s *Store) GetMemory(ctx context.Context, filePath string) (*types.Memory, error) {
	var mem types.Memory
	err := s.storage.Get(ctx, []string{"memory", docKey(filePath)}, &mem)
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Memory{FilePath: filePath}, nil
	}
	if err != nil {
		return nil, err
	}
	return &mem, nil
}

// SaveMemory stores mem unless a newer version is already stored.
func (s *Store) SaveMemory(ctx context.Context, mem *types.Memory) error {
	var stored types.Memory
	err := s.storage.Update(ctx, []string{"memory", docKey(mem.FilePath)}, &stored, func() error {
		if stored.Version > mem.Version {
			return errStale
		}
		stored = *mem
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}
