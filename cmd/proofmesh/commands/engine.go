package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/audit"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/docstore"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/event"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/promptctx"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/reasoning"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/session"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/storage"
	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// engine is the wired set of components behind both commands.
type engine struct {
	docs        *docstore.Store
	bus         *event.Bus
	recorder    *audit.Recorder
	coordinator *session.Coordinator
}

// newEngine builds the engine described by appConfig. replay, when set,
// overrides the configured reasoning service with a recorded stream. With
// dryRun documents are never written back.
func newEngine(appConfig *types.Config, replay string, dryRun bool) (*engine, error) {
	docs, err := docstore.New(appConfig.Workspace)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	bus := event.NewBus()
	trail := audit.NewStore(storage.New(appConfig.Storage.Dir))
	recorder, err := audit.NewRecorder(trail, bus.PubSub())
	if err != nil {
		bus.Close()
		return nil, err
	}

	rc := appConfig.Reasoning
	var client reasoning.Client
	switch {
	case replay != "":
		client = reasoning.NewReplayClient(afero.NewOsFs(), replay)
	case rc.Replay != "":
		client = reasoning.NewReplayClient(afero.NewOsFs(), rc.Replay)
	case rc.URL != "":
		client = reasoning.NewHTTPClient(rc.URL, rc.APIKey, rc.HeaderTimeout.Std())
	default:
		recorder.Close()
		bus.Close()
		return nil, errors.New("no reasoning service configured: set reasoning.url or reasoning.replay")
	}

	cc := appConfig.Context
	var knowledge promptctx.Knowledge
	if cc.Knowledge != "" {
		kb, err := promptctx.LoadKnowledge(afero.NewOsFs(), cc.Knowledge)
		if err != nil {
			logging.Component(logging.ComponentCLI).Warn().Err(err).Str("path", cc.Knowledge).Msg("knowledge base not loaded")
		} else {
			knowledge = kb
		}
	}
	assembler := promptctx.New(docs, knowledge, promptctx.Options{
		MaxItemChars:  cc.MaxItemChars,
		ExcerptWindow: cc.ExcerptWindow,
		MaxFiles:      cc.MaxFiles,
	})

	var sessionDocs session.Documents = docs
	if dryRun {
		sessionDocs = readOnlyDocs{docs}
	}
	opts := session.Options{
		Client:           client,
		Docs:             sessionDocs,
		Trail:            recorder,
		Bus:              bus,
		Assembler:        assembler,
		ModelTier:        rc.ModelTier,
		MaxRetries:       rc.MaxRetries,
		AutosaveDisabled: appConfig.Autosave.Disabled,
		AutosaveDebounce: appConfig.Autosave.Debounce.Std(),
	}
	if rc.ForceEdit != nil {
		opts.ForceEdit = *rc.ForceEdit
	}

	return &engine{
		docs:        docs,
		bus:         bus,
		recorder:    recorder,
		coordinator: session.New(opts),
	}, nil
}

// close flushes the audit trail and stops the bus. The coordinator must be
// shut down first.
func (e *engine) close() {
	if err := e.recorder.Close(); err != nil {
		logging.Component(logging.ComponentCLI).Warn().Err(err).Msg("audit recorder close failed")
	}
	e.bus.Close()
}

// readOnlyDocs drops writes.
type readOnlyDocs struct {
	*docstore.Store
}

func (d readOnlyDocs) Write(path, _ string) error {
	logging.Component(logging.ComponentCLI).Debug().Str("file", path).Msg("dry run: write skipped")
	return nil
}
