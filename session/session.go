// Package session mounts one project into an editor and keeps its local
// and remote copies up to date.
package session

import (
	"context"

	"compass/config"
	"compass/editor"
	"compass/history"
	"compass/localcache"
	"compass/scene"
	"compass/syncclient"

	"github.com/sirupsen/logrus"
)

type Session struct {
	projectID string
	editor    *editor.Editor
	local     *localcache.Cache
	remote    *syncclient.Client
	log       logrus.FieldLogger
	dirty     bool
}

// Open builds an editor for projectID. Local history wins when present,
// then an unsynced local snapshot, then the server copy. Anything the
// server never acknowledged is scheduled for upload again. Load failures
// leave an empty canvas rather than an error. remote may be nil for
// offline use.
func Open(ctx context.Context, projectID string, local *localcache.Cache, remote *syncclient.Client, log logrus.FieldLogger, opts ...editor.Option) *Session {
	log = log.WithField("project_id", projectID)
	sc := scene.New()
	h := history.New()
	ed := editor.New(sc, h, editor.NewStore(), append([]editor.Option{editor.WithLogger(log)}, opts...)...)

	s := &Session{projectID: projectID, editor: ed, local: local, remote: remote, log: log}

	st := local.Load(projectID)
	sc.Viewport = scene.Viewport{Zoom: st.Zoom, Pan: st.Pan}
	if len(st.CanvasHistory) > 0 {
		h.Seed(st.CanvasHistory, st.HistoryIndex)
		ed.Restore()
		log.WithField("entries", h.Len()).Debug("Restored canvas from local history")
	} else if snap, ok := pendingSnapshot(local, projectID, log); ok {
		ed.LoadSnapshot(snap)
		log.Debug("Restored canvas from unsynced local snapshot")
	} else if remote != nil {
		snap, source, err := remote.LoadCanvasState(ctx, projectID)
		switch {
		case err != nil:
			log.WithError(err).Warn("Starting with an empty canvas")
		case snap != nil:
			ed.LoadSnapshot(*snap)
			log.WithField("source", source).Debug("Loaded canvas from server")
		}
	}
	ed.EnsureBaseline()

	h.OnChange(s.saveLocal)
	ed.OnViewportChange(func(scene.Viewport) { s.saveLocal() })
	ed.OnChange(s.saveRemote)

	// A pending snapshot was never acknowledged by the server.
	if _, ok := local.Pending(projectID); ok && remote != nil {
		log.Info("Re-sending canvas state the server did not acknowledge")
		s.saveRemote()
	}
	return s
}

// EditorOptions maps client settings onto editor options for Open.
func EditorOptions(cfg config.ClientConfig) []editor.Option {
	var opts []editor.Option
	if cfg.EraseRadius > 0 {
		opts = append(opts, editor.WithEraseRadius(cfg.EraseRadius))
	}
	return opts
}

func pendingSnapshot(local *localcache.Cache, projectID string, log logrus.FieldLogger) (scene.Snapshot, bool) {
	data, ok := local.Pending(projectID)
	if !ok {
		return scene.Snapshot{}, false
	}
	snap, err := scene.Decode([]byte(data))
	if err != nil {
		log.WithError(err).Warn("Ignoring malformed unsynced snapshot")
		return scene.Snapshot{}, false
	}
	return snap, true
}

func (s *Session) ProjectID() string       { return s.projectID }
func (s *Session) Editor() *editor.Editor { return s.editor }

// State returns the persistable editor state.
func (s *Session) State() localcache.State {
	h := s.editor.History()
	v := s.editor.Scene().Viewport
	return localcache.State{
		Zoom:          v.Zoom,
		Pan:           v.Pan,
		CanvasHistory: h.Entries(),
		HistoryIndex:  h.Index(),
	}
}

func (s *Session) saveLocal() {
	s.local.Save(s.projectID, s.State())
}

func (s *Session) saveRemote() {
	s.dirty = true
	if s.remote != nil {
		s.remote.SaveCanvasState(s.projectID, s.editor.Scene().Snapshot())
	}
}

// Save writes local state and uploads the scene immediately.
func (s *Session) Save(ctx context.Context) error {
	if err := s.local.SaveNow(s.projectID, s.State()); err != nil {
		s.log.WithError(err).Warn("Failed to write local canvas state")
	}
	if s.remote == nil {
		return nil
	}
	if err := s.remote.SaveCanvasStateImmediate(ctx, s.projectID, s.editor.Scene().Snapshot()); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close flushes everything for the project. Unsaved scene changes are
// uploaded immediately rather than waiting on the debounce timer.
func (s *Session) Close(ctx context.Context) error {
	if s.editor.Store().GetState().EditingText != "" {
		s.editor.FinishTextEdit()
	}
	if !s.dirty {
		if err := s.local.SaveNow(s.projectID, s.State()); err != nil {
			s.log.WithError(err).Warn("Failed to write local canvas state")
		}
		return nil
	}
	return s.Save(ctx)
}

// Switch closes this session and opens projectID with the same caches.
func (s *Session) Switch(ctx context.Context, projectID string, opts ...editor.Option) (*Session, error) {
	err := s.Close(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Leaving project with unsynced changes")
	}
	return Open(ctx, projectID, s.local, s.remote, s.log, opts...), err
}
