package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/speaklens/speaklens/internal/assessment"
	"github.com/speaklens/speaklens/internal/models"
	"github.com/speaklens/speaklens/internal/providers/embed"
	"github.com/speaklens/speaklens/internal/providers/stt"
	mongorepo "github.com/speaklens/speaklens/internal/repositories/mongo"
	pgrepo "github.com/speaklens/speaklens/internal/repositories/postgres"
	"github.com/speaklens/speaklens/internal/state"
	"github.com/speaklens/speaklens/internal/storage"
	"github.com/speaklens/speaklens/internal/utils"
)

// SessionStatus is the caller-facing snapshot of where a session stands.
type SessionStatus struct {
	ID              string                 `json:"session_id"`
	Phase           models.Phase           `json:"phase"`
	TimeRemainingMS int64                  `json:"phase_time_remaining"`
	TurnIndex       int                    `json:"turn_index"`
	Status          string                 `json:"status"`
	Metadata        models.SessionMetadata `json:"metadata"`
}

// TurnOutcome is the result of one processed turn.
type TurnOutcome struct {
	AIResponse      string       `json:"ai_response"`
	AIAudio         []byte       `json:"-"`
	UserTranscript  string       `json:"user_transcript"`
	Phase           models.Phase `json:"phase"`
	TurnIndex       int          `json:"turn_index"`
	TimeRemainingMS int64        `json:"phase_time_remaining"`
	Advanced        bool         `json:"should_advance"`
	Status          string       `json:"status"`
}

// MetadataUpdate carries partial metadata changes; nil fields are untouched.
type MetadataUpdate struct {
	ConsentRecorded  *bool             `json:"consent_recorded"`
	MicTestCompleted *bool             `json:"mic_test_completed"`
	Interruptions    *int              `json:"interruptions"`
	DeviceInfo       map[string]string `json:"device_info"`
}

type TranscriptEntry struct {
	Phase      models.Phase `json:"phase"`
	TurnIndex  int          `json:"turn_index"`
	Timestamp  time.Time    `json:"timestamp"`
	Transcript string       `json:"transcript"`
	AIResponse string       `json:"ai_response"`
}

type TurnAudioRefs struct {
	TurnIndex    int    `json:"turn_index"`
	UserAudioURL string `json:"user_audio_url,omitempty"`
	AIResponse   string `json:"ai_response"`
}

type Progress struct {
	CurrentPhase         models.Phase `json:"current_phase"`
	PhaseNumber          int          `json:"phase_number"`
	TotalPhases          int          `json:"total_phases"`
	ProgressPercent      int          `json:"progress_percentage"`
	TurnsCompleted       int          `json:"turns_completed"`
	TimeElapsedMS        int64        `json:"time_elapsed"`
	EstimatedRemainingMS int64        `json:"estimated_time_remaining"`
}

type AssessmentService interface {
	Start(ctx context.Context) (*SessionStatus, error)
	Status(ctx context.Context, sessionID string) (*SessionStatus, error)
	ProcessTurn(ctx context.Context, sessionID string, audio []byte, contentType, language string) (*TurnOutcome, error)
	UpdateMetadata(ctx context.Context, sessionID string, upd MetadataUpdate) (*models.SessionMetadata, error)
	End(ctx context.Context, sessionID string) error
	Results(ctx context.Context, sessionID string) (*models.FinalScore, error)
	Transcript(ctx context.Context, sessionID string) ([]TranscriptEntry, error)
	TurnAudio(ctx context.Context, sessionID string, turnIndex int) (*TurnAudioRefs, error)
	Progress(ctx context.Context, sessionID string) (*Progress, error)
	ForceAdvance(ctx context.Context, sessionID string, target models.Phase) (*SessionStatus, error)
	Stats(ctx context.Context) (map[string]any, error)
}

// Deps wires the service. Store, Engine, and STT are required; the archive
// and event dependencies are optional and skipped when nil.
type Deps struct {
	Store       state.SessionStore
	Engine      *assessment.Engine
	STT         stt.Provider
	Audio       storage.AudioStore
	Transcripts pgrepo.TranscriptRepo
	Results     mongorepo.ResultRepository
	Embedder    embed.Provider
	Redis       *redis.Client
	Logger      *logrus.Logger
	CallTimeout time.Duration
}

type assessmentService struct {
	store       state.SessionStore
	engine      *assessment.Engine
	stt         stt.Provider
	audio       storage.AudioStore
	transcripts pgrepo.TranscriptRepo
	results     mongorepo.ResultRepository
	embedder    embed.Provider
	rdb         *redis.Client
	log         *logrus.Logger
	callTimeout time.Duration

	// one mutex per session id; all read-modify-write goes through it
	locks sync.Map
}

func NewAssessmentService(d Deps) AssessmentService {
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.CallTimeout <= 0 {
		d.CallTimeout = 30 * time.Second
	}
	return &assessmentService{
		store:       d.Store,
		engine:      d.Engine,
		stt:         d.STT,
		audio:       d.Audio,
		transcripts: d.Transcripts,
		results:     d.Results,
		embedder:    d.Embedder,
		rdb:         d.Redis,
		log:         d.Logger,
		callTimeout: d.CallTimeout,
	}
}

func (s *assessmentService) lockFor(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *assessmentService) load(ctx context.Context, op, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load session", err)
	}
	return sess, nil
}

func (s *assessmentService) snapshot(sess *models.Session) *SessionStatus {
	return &SessionStatus{
		ID:              sess.ID,
		Phase:           sess.Phase,
		TimeRemainingMS: s.engine.TimeRemaining(sess).Milliseconds(),
		TurnIndex:       sess.TurnIndex,
		Status:          sess.Status,
		Metadata:        sess.Metadata,
	}
}

func (s *assessmentService) Start(ctx context.Context) (*SessionStatus, error) {
	const op = "AssessmentService.Start"

	sess := s.engine.NewSession()
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}

	s.log.WithField("session_id", sess.ID).Info("assessment session started")
	return s.snapshot(sess), nil
}

func (s *assessmentService) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	const op = "AssessmentService.Status"

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}

	// a status poll past the budget pushes the phase forward
	if s.engine.HasTimedOut(sess) {
		s.engine.Advance(sess)
		if err := s.store.Put(ctx, sess); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to persist session", err)
		}
		s.publishStatus(ctx, sess.ID, "phase_advanced", string(sess.Phase))
	}

	return s.snapshot(sess), nil
}

func (s *assessmentService) ProcessTurn(ctx context.Context, sessionID string, audio []byte, contentType, language string) (*TurnOutcome, error) {
	const op = "AssessmentService.ProcessTurn"

	if len(audio) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "audio is required", nil)
	}

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusActive {
		return nil, utils.E(utils.CodeConflict, op, "session is not active", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	tr, err := s.stt.Transcribe(callCtx, audio, language)
	if err != nil {
		return nil, collaboratorErr(op, "failed to transcribe audio", err)
	}

	audioURL := s.uploadTurnAudio(ctx, sess, audio, contentType)

	out, err := s.engine.ProcessTurn(callCtx, sess, tr.Text, audioURL)
	if err != nil {
		return nil, collaboratorErr(op, "failed to process turn", err)
	}

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist session", err)
	}

	turn := sess.Turns[len(sess.Turns)-1]
	s.archiveTurn(ctx, sess, turn)
	s.publishTurn(ctx, sess, turn, out)

	return &TurnOutcome{
		AIResponse:      out.AIResponse,
		AIAudio:         out.AIAudio,
		UserTranscript:  tr.Text,
		Phase:           out.Phase,
		TurnIndex:       sess.TurnIndex,
		TimeRemainingMS: out.TimeRemaining.Milliseconds(),
		Advanced:        out.Advanced,
		Status:          sess.Status,
	}, nil
}

func (s *assessmentService) UpdateMetadata(ctx context.Context, sessionID string, upd MetadataUpdate) (*models.SessionMetadata, error) {
	const op = "AssessmentService.UpdateMetadata"

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}

	if upd.ConsentRecorded != nil {
		sess.Metadata.ConsentRecorded = *upd.ConsentRecorded
	}
	if upd.MicTestCompleted != nil {
		sess.Metadata.MicTestCompleted = *upd.MicTestCompleted
	}
	if upd.Interruptions != nil {
		sess.Metadata.Interruptions = *upd.Interruptions
	}
	if len(upd.DeviceInfo) > 0 {
		if sess.Metadata.DeviceInfo == nil {
			sess.Metadata.DeviceInfo = map[string]string{}
		}
		for k, v := range upd.DeviceInfo {
			sess.Metadata.DeviceInfo[k] = v
		}
	}

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist session", err)
	}
	return &sess.Metadata, nil
}

// End force-terminates a session: status and phase are both set here, in the
// same call, unlike the timeout path which only ever touches phase.
func (s *assessmentService) End(ctx context.Context, sessionID string) error {
	const op = "AssessmentService.End"

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return err
	}

	sess.Status = models.StatusEnded
	sess.Phase = models.PhaseComplete

	if err := s.store.Put(ctx, sess); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to persist session", err)
	}

	s.publishStatus(ctx, sess.ID, "ended", "session ended")
	return nil
}

func (s *assessmentService) Results(ctx context.Context, sessionID string) (*models.FinalScore, error) {
	const op = "AssessmentService.Results"

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != models.PhaseWrap && sess.Phase != models.PhaseComplete {
		return nil, utils.E(utils.CodeConflict, op, "assessment not yet completed", nil)
	}

	if sess.Scores != nil {
		return sess.Scores, nil
	}

	// a restarted process may find the score already archived; recover it
	// instead of paying for a second rubric call
	if fs := s.archivedResult(ctx, sessionID); fs != nil {
		sess.Scores = fs
		if err := s.store.Put(ctx, sess); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to persist session", err)
		}
		return fs, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	fs, err := s.engine.Finalize(callCtx, sess)
	if err != nil {
		return nil, collaboratorErr(op, "failed to score assessment", err)
	}

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist session", err)
	}

	s.archiveResult(ctx, sess.ID, fs)
	return fs, nil
}

func (s *assessmentService) Transcript(ctx context.Context, sessionID string) ([]TranscriptEntry, error) {
	const op = "AssessmentService.Transcript"

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}

	// the archived log survives process restarts and snapshot eviction, so
	// it is the preferred source when Postgres is wired
	if entries := s.durableTranscript(ctx, sessionID); len(entries) > 0 {
		return entries, nil
	}

	entries := make([]TranscriptEntry, 0, len(sess.Turns))
	for _, t := range sess.Turns {
		if t.UserTranscript == "" {
			continue
		}
		entries = append(entries, TranscriptEntry{
			Phase:      t.Phase,
			TurnIndex:  t.Index,
			Timestamp:  t.Timestamp,
			Transcript: t.UserTranscript,
			AIResponse: t.AIResponse,
		})
	}
	return entries, nil
}

func (s *assessmentService) TurnAudio(ctx context.Context, sessionID string, turnIndex int) (*TurnAudioRefs, error) {
	const op = "AssessmentService.TurnAudio"

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if turnIndex < 0 || turnIndex >= len(sess.Turns) {
		return nil, utils.E(utils.CodeNotFound, op, "turn not found", nil)
	}

	t := sess.Turns[turnIndex]
	return &TurnAudioRefs{
		TurnIndex:    turnIndex,
		UserAudioURL: t.UserAudioURL,
		AIResponse:   t.AIResponse,
	}, nil
}

func (s *assessmentService) Progress(ctx context.Context, sessionID string) (*Progress, error) {
	const op = "AssessmentService.Progress"

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}

	table := s.engine.Table
	phases := table.Phases()
	total := len(phases) - 1 // terminal phase is not a step
	num := table.Index(sess.Phase) + 1
	if num > total {
		num = total
	}

	// remaining budget in this phase plus the full budgets after it
	remaining := s.engine.TimeRemaining(sess)
	for p, ok := table.Next(sess.Phase); ok; p, ok = table.Next(p) {
		remaining += table.Duration(p)
	}

	return &Progress{
		CurrentPhase:         sess.Phase,
		PhaseNumber:          num,
		TotalPhases:          total,
		ProgressPercent:      int(float64(num) / float64(total) * 100),
		TurnsCompleted:       len(sess.Turns),
		TimeElapsedMS:        time.Since(sess.CreatedAt).Milliseconds(),
		EstimatedRemainingMS: remaining.Milliseconds(),
	}, nil
}

func (s *assessmentService) ForceAdvance(ctx context.Context, sessionID string, target models.Phase) (*SessionStatus, error) {
	const op = "AssessmentService.ForceAdvance"

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}

	if target != "" {
		if !s.engine.Table.Valid(target) {
			return nil, utils.E(utils.CodeInvalidArgument, op, "unknown target phase", nil)
		}
		sess.Phase = target
		sess.PhaseStartTime = time.Now().UTC()
		sess.TurnIndex = 0
	} else {
		s.engine.Advance(sess)
	}

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist session", err)
	}

	s.publishStatus(ctx, sess.ID, "phase_advanced", string(sess.Phase))
	return s.snapshot(sess), nil
}

func (s *assessmentService) Stats(ctx context.Context) (map[string]any, error) {
	const op = "AssessmentService.Stats"

	counter, ok := s.store.(state.Counter)
	if !ok {
		return nil, utils.E(utils.CodeConflict, op, "store does not report stats", nil)
	}
	n, err := counter.Count(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to count sessions", err)
	}
	return map[string]any{"total_sessions": n}, nil
}

func collaboratorErr(op, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.E(utils.CodeTimeout, op, msg, err)
	}
	return utils.E(utils.CodeUnavailable, op, msg, err)
}

// uploadTurnAudio stores the raw utterance for later retrieval. Storage is
// not one of the turn's required collaborators; failures degrade to an
// unreferenced turn rather than failing the submission.
func (s *assessmentService) uploadTurnAudio(ctx context.Context, sess *models.Session, audio []byte, contentType string) string {
	if s.audio == nil {
		return ""
	}
	if contentType == "" {
		contentType = "audio/webm"
	}

	name := fmt.Sprintf("sessions/%s/turn-%03d", sess.ID, len(sess.Turns))
	url, err := s.audio.Upload(ctx, name, contentType, bytes.NewReader(audio))
	if err != nil {
		s.log.WithError(err).WithField("session_id", sess.ID).Warn("audio upload failed")
		return ""
	}
	return url
}

// archiveTurn writes the utterance and prompt to the durable transcript log,
// with an embedding for the user row when an embedder is wired.
func (s *assessmentService) archiveTurn(ctx context.Context, sess *models.Session, turn models.Turn) {
	if s.transcripts == nil {
		return
	}

	meta, _ := json.Marshal(map[string]any{"duration_ms": turn.DurationMS})

	userRow := &models.TranscriptLog{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Phase:     string(turn.Phase),
		TurnIndex: turn.Index,
		Role:      "user",
		Content:   turn.UserTranscript,
		Timestamp: turn.Timestamp,
		Metadata:  datatypes.JSON(meta),
	}
	if s.embedder != nil && turn.UserTranscript != "" {
		if vec, err := s.embedder.Embed(ctx, turn.UserTranscript); err == nil {
			userRow.Embedding = pgvector.NewVector(vec)
		} else {
			s.log.WithError(err).WithField("session_id", sess.ID).Warn("transcript embedding failed")
		}
	}

	rows := []*models.TranscriptLog{userRow, {
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Phase:     string(turn.Phase),
		TurnIndex: turn.Index,
		Role:      "assistant",
		Content:   turn.AIResponse,
		Timestamp: turn.Timestamp,
		Metadata:  datatypes.JSON(meta),
	}}

	if err := s.transcripts.Insert(ctx, rows); err != nil {
		s.log.WithError(err).WithField("session_id", sess.ID).Warn("transcript archive failed")
	}
}

// durableTranscript rebuilds the transcript from the archived log, pairing
// each turn's user and assistant rows. Empty when nothing is archived for
// the session.
func (s *assessmentService) durableTranscript(ctx context.Context, sessionID string) []TranscriptEntry {
	if s.transcripts == nil {
		return nil
	}

	rows, err := s.transcripts.ListBySession(ctx, sessionID, 0)
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("transcript log read failed")
		return nil
	}

	entries := make([]TranscriptEntry, 0, len(rows)/2)
	byTurn := map[string]int{}
	for _, r := range rows {
		key := fmt.Sprintf("%s/%d", r.Phase, r.TurnIndex)
		idx, ok := byTurn[key]
		if !ok {
			idx = len(entries)
			entries = append(entries, TranscriptEntry{
				Phase:     models.Phase(r.Phase),
				TurnIndex: r.TurnIndex,
				Timestamp: r.Timestamp,
			})
			byTurn[key] = idx
		}
		switch r.Role {
		case "user":
			entries[idx].Transcript = r.Content
		case "assistant":
			entries[idx].AIResponse = r.Content
		}
	}

	// silent turns have no user speech and are dropped, matching the
	// in-memory path
	kept := entries[:0]
	for _, e := range entries {
		if e.Transcript != "" {
			kept = append(kept, e)
		}
	}
	return kept
}

// archivedResult looks up a previously archived final score.
func (s *assessmentService) archivedResult(ctx context.Context, sessionID string) *models.FinalScore {
	if s.results == nil {
		return nil
	}
	res, err := s.results.GetBySessionID(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("archived result lookup failed")
		}
		return nil
	}
	fs := res.Result
	return &fs
}

func (s *assessmentService) archiveResult(ctx context.Context, sessionID string, fs *models.FinalScore) {
	if s.results == nil {
		return
	}
	err := s.results.Upsert(ctx, &models.AssessmentResult{
		SessionID: sessionID,
		Result:    *fs,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("result archive failed")
	}
}

func (s *assessmentService) publishTurn(ctx context.Context, sess *models.Session, turn models.Turn, out *assessment.TurnResult) {
	if s.rdb == nil {
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"type":                 "turn_result",
		"turn_index":           turn.Index,
		"ai_response":          out.AIResponse,
		"phase":                out.Phase,
		"phase_time_remaining": out.TimeRemaining.Milliseconds(),
		"should_advance":       out.Advanced,
	})
	_ = s.rdb.Publish(ctx, eventsChannel(sess.ID), string(payload)).Err()
}

func (s *assessmentService) publishStatus(ctx context.Context, sessionID, status, message string) {
	if s.rdb == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"type":    "status",
		"status":  status,
		"message": message,
	})
	_ = s.rdb.Publish(ctx, statusChannel(sessionID), string(payload)).Err()
}

func eventsChannel(sessionID string) string { return "assessment:" + sessionID + ":events" }
func statusChannel(sessionID string) string { return "assessment:" + sessionID + ":status" }
