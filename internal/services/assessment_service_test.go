package services

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/speaklens/speaklens/internal/assessment"
	"github.com/speaklens/speaklens/internal/models"
	"github.com/speaklens/speaklens/internal/providers/stt"
	"github.com/speaklens/speaklens/internal/state"
	"github.com/speaklens/speaklens/internal/utils"
)

type fakeSTT struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSTT) Transcribe(_ context.Context, audio []byte, _ string) (*stt.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &stt.Result{Text: string(audio), Language: "en-US", Confidence: 0.9, DurationMS: 5000}, nil
}

func (f *fakeSTT) Close() error { return nil }

type fakeTTS struct{}

func (fakeTTS) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("audio:" + text), nil
}

func (fakeTTS) Close() error { return nil }

type fakeLLM struct {
	mu       sync.Mutex
	response string
	calls    int
}

func (f *fakeLLM) StreamAnswer(_ context.Context, _ string) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	chunks <- f.response
	close(chunks)
	errs <- nil
	close(errs)
	return chunks, errs
}

func (f *fakeLLM) Close() error { return nil }

// fakeTranscriptRepo keeps archived rows in memory.
type fakeTranscriptRepo struct {
	mu   sync.Mutex
	rows []*models.TranscriptLog
}

func (f *fakeTranscriptRepo) Insert(_ context.Context, rows []*models.TranscriptLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeTranscriptRepo) ListBySession(_ context.Context, sessionID string, _ int) ([]models.TranscriptLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TranscriptLog
	for _, r := range f.rows {
		if r.SessionID == sessionID {
			out = append(out, *r)
		}
	}
	return out, nil
}

// fakeResultRepo keeps archived final scores in memory.
type fakeResultRepo struct {
	mu      sync.Mutex
	results map[string]*models.AssessmentResult
}

func (f *fakeResultRepo) Upsert(_ context.Context, r *models.AssessmentResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = map[string]*models.AssessmentResult{}
	}
	f.results[r.SessionID] = r
	return nil
}

func (f *fakeResultRepo) GetBySessionID(_ context.Context, sessionID string) (*models.AssessmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return r, nil
}

const rubricJSON = `{
  "scores": {"fluency": 3, "pronunciation": 3, "grammar": 3, "vocabulary": 3, "comprehension": 3, "task_completion": 3},
  "rationale": "consistent mid-band performance",
  "confidence": 0.8
}`

func newTestService(t *testing.T) (AssessmentService, *state.MemoryStore, *fakeLLM) {
	t.Helper()

	llmP := &fakeLLM{response: rubricJSON}
	engine := &assessment.Engine{
		Table: assessment.DefaultPhaseTable(),
		TTS:   fakeTTS{},
		LLM:   llmP,
	}
	store := state.NewMemoryStore()

	svc := NewAssessmentService(Deps{
		Store:  store,
		Engine: engine,
		STT:    &fakeSTT{},
	})
	return svc, store, llmP
}

func TestStartAndStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Phase != models.PhaseInit || st.Status != models.StatusActive {
		t.Fatalf("unexpected initial snapshot: %+v", st)
	}

	again, err := svc.Status(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != st.ID {
		t.Fatalf("expected same session, got %q", again.ID)
	}
}

func TestStatusUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Status(context.Background(), "missing")
	if !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestProcessTurnRequiresAudio(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ProcessTurn(context.Background(), "any", nil, "", "")
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestProcessTurnRoundTrip(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	out, err := svc.ProcessTurn(ctx, st.ID, []byte("I consent to this assessment"), "audio/webm", "en-US")
	if err != nil {
		t.Fatal(err)
	}
	if out.UserTranscript != "I consent to this assessment" {
		t.Fatalf("unexpected transcript: %q", out.UserTranscript)
	}
	if out.AIResponse == "" || len(out.AIAudio) == 0 {
		t.Fatal("expected prompt and audio")
	}

	sess, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Turns) != 1 {
		t.Fatalf("expected turn persisted, got %d", len(sess.Turns))
	}
}

func TestProcessTurnConcurrentSerialization(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// init never advances without the metadata flags, so every turn lands in
	// the same phase and the per-session lock must hand out unique indices
	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.ProcessTurn(ctx, st.ID, []byte("utterance "+strconv.Itoa(i)), "", ""); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	sess, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Turns) != n {
		t.Fatalf("expected %d turns, got %d", n, len(sess.Turns))
	}

	seen := map[int]bool{}
	for _, turn := range sess.Turns {
		if turn.Phase != models.PhaseInit {
			t.Fatalf("unexpected phase %q", turn.Phase)
		}
		if seen[turn.Index] {
			t.Fatalf("duplicate turn index %d", turn.Index)
		}
		seen[turn.Index] = true
	}
}

func TestProcessTurnRejectsEndedSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.End(ctx, st.ID); err != nil {
		t.Fatal(err)
	}

	_, err = svc.ProcessTurn(ctx, st.ID, []byte("hello"), "", "")
	if !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestEndSetsStatusAndPhaseTogether(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.End(ctx, st.ID); err != nil {
		t.Fatal(err)
	}

	sess, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != models.StatusEnded {
		t.Fatalf("expected ended status, got %q", sess.Status)
	}
	if sess.Phase != models.PhaseComplete {
		t.Fatalf("expected complete phase, got %q", sess.Phase)
	}
}

func TestTimeoutAdvanceLeavesStatusActive(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// a wrap session past its budget completes on the next status poll,
	// but only force-end ever touches the status field
	sess, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	sess.Phase = models.PhaseWrap
	sess.PhaseStartTime = time.Now().UTC().Add(-20 * time.Second)
	if err := store.Put(ctx, sess); err != nil {
		t.Fatal(err)
	}

	snap, err := svc.Status(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Phase != models.PhaseComplete {
		t.Fatalf("expected timeout advance to complete, got %q", snap.Phase)
	}
	if snap.Status != models.StatusActive {
		t.Fatalf("expected status untouched by timeout, got %q", snap.Status)
	}
}

func TestResultsGatedToFinalPhases(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Results(ctx, st.ID)
	if !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("expected CONFLICT before wrap, got %v", err)
	}
}

func TestResultsFinalizesOnceInWrap(t *testing.T) {
	svc, store, llmP := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// walk the session into wrap with some recorded speech
	sess, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	sess.Phase = models.PhaseWrap
	sess.Turns = []models.Turn{
		{Index: 0, Phase: models.PhaseWarmup, UserTranscript: "my name is Ana from Lisbon", DurationMS: 8000},
	}
	if err := store.Put(ctx, sess); err != nil {
		t.Fatal(err)
	}

	fs, err := svc.Results(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fs.TotalScore != 18 || fs.LevelCEFR != "B2" {
		t.Fatalf("unexpected score: %+v", fs)
	}

	// second read serves the persisted score without another LLM call
	again, err := svc.Results(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.LevelCEFR != fs.LevelCEFR {
		t.Fatalf("expected stable result, got %+v", again)
	}
	llmP.mu.Lock()
	calls := llmP.calls
	llmP.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one scoring call, got %d", calls)
	}
}

func TestUpdateMetadataPartial(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	consent := true
	md, err := svc.UpdateMetadata(ctx, st.ID, MetadataUpdate{
		ConsentRecorded: &consent,
		DeviceInfo:      map[string]string{"browser": "firefox"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !md.ConsentRecorded || md.MicTestCompleted {
		t.Fatalf("unexpected metadata: %+v", md)
	}
	if md.DeviceInfo["browser"] != "firefox" {
		t.Fatalf("expected device info merged, got %+v", md.DeviceInfo)
	}

	// second partial update leaves earlier fields alone
	mic := true
	md, err = svc.UpdateMetadata(ctx, st.ID, MetadataUpdate{MicTestCompleted: &mic})
	if err != nil {
		t.Fatal(err)
	}
	if !md.ConsentRecorded || !md.MicTestCompleted {
		t.Fatalf("partial update clobbered metadata: %+v", md)
	}
}

func TestForceAdvance(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	next, err := svc.ForceAdvance(ctx, st.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if next.Phase != models.PhaseWarmup {
		t.Fatalf("expected warmup, got %q", next.Phase)
	}

	jumped, err := svc.ForceAdvance(ctx, st.ID, models.PhaseWrap)
	if err != nil {
		t.Fatal(err)
	}
	if jumped.Phase != models.PhaseWrap || jumped.TurnIndex != 0 {
		t.Fatalf("expected jump to wrap with reset index, got %+v", jumped)
	}

	if _, err := svc.ForceAdvance(ctx, st.ID, models.Phase("karaoke")); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT for unknown phase, got %v", err)
	}
}

func TestTranscriptSkipsSilentTurns(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	sess, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	sess.Turns = []models.Turn{
		{Index: 0, Phase: models.PhaseInit, UserTranscript: "", AIResponse: "welcome", Timestamp: time.Now().UTC()},
		{Index: 1, Phase: models.PhaseInit, UserTranscript: "I consent", AIResponse: "great", Timestamp: time.Now().UTC()},
	}
	if err := store.Put(ctx, sess); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.Transcript(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Transcript != "I consent" {
		t.Fatalf("unexpected transcript entries: %+v", entries)
	}
}

func TestTranscriptPrefersDurableLog(t *testing.T) {
	llmP := &fakeLLM{response: rubricJSON}
	store := state.NewMemoryStore()
	transcripts := &fakeTranscriptRepo{}
	svc := NewAssessmentService(Deps{
		Store:       store,
		Engine:      &assessment.Engine{Table: assessment.DefaultPhaseTable(), TTS: fakeTTS{}, LLM: llmP},
		STT:         &fakeSTT{},
		Transcripts: transcripts,
	})
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ProcessTurn(ctx, st.ID, []byte("I consent to proceed"), "", ""); err != nil {
		t.Fatal(err)
	}

	// the snapshot holds the turn too; wipe it so only the archived log can
	// serve the transcript
	sess, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	sess.Turns = nil
	if err := store.Put(ctx, sess); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.Transcript(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 archived entry, got %+v", entries)
	}
	if entries[0].Transcript != "I consent to proceed" {
		t.Fatalf("unexpected transcript: %q", entries[0].Transcript)
	}
	if entries[0].AIResponse == "" {
		t.Fatal("expected the assistant row merged into the entry")
	}
	if entries[0].Phase != models.PhaseInit || entries[0].TurnIndex != 0 {
		t.Fatalf("unexpected entry position: %+v", entries[0])
	}
}

func TestResultsRecoversArchivedScore(t *testing.T) {
	llmP := &fakeLLM{response: rubricJSON}
	store := state.NewMemoryStore()
	results := &fakeResultRepo{}
	svc := NewAssessmentService(Deps{
		Store:   store,
		Engine:  &assessment.Engine{Table: assessment.DefaultPhaseTable(), TTS: fakeTTS{}, LLM: llmP},
		STT:     &fakeSTT{},
		Results: results,
	})
	ctx := context.Background()

	st, err := svc.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	archived := &models.FinalScore{
		LevelCEFR:  "C1",
		TotalScore: 24,
		Scores: models.ScoreBreakdown{
			RubricScores: models.RubricScores{Fluency: 4, Pronunciation: 4, Grammar: 4, Vocabulary: 4, Comprehension: 4, TaskCompletion: 4},
		},
	}
	if err := results.Upsert(ctx, &models.AssessmentResult{SessionID: st.ID, Result: *archived}); err != nil {
		t.Fatal(err)
	}

	// a fresh snapshot in wrap with no cached score, as after a restart
	sess, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	sess.Phase = models.PhaseWrap
	if err := store.Put(ctx, sess); err != nil {
		t.Fatal(err)
	}

	fs, err := svc.Results(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fs.TotalScore != 24 || fs.LevelCEFR != "C1" {
		t.Fatalf("expected archived score served, got %+v", fs)
	}

	llmP.mu.Lock()
	calls := llmP.calls
	llmP.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no scoring call for an archived result, got %d", calls)
	}
}

func TestStatsRequiresCountingStore(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats["total_sessions"] != 1 {
		t.Fatalf("expected 1 session, got %v", stats["total_sessions"])
	}
}
