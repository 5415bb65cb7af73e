package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicevault/backend/internal/audio"
	"github.com/voicevault/backend/internal/models"
	"github.com/voicevault/backend/internal/transcribe"
	"github.com/voicevault/backend/pkg/queue"
)

type fakeStore struct {
	recordings map[uuid.UUID]*models.Recording
	failCalls  int
	s3Keys     map[uuid.UUID]string
}

func newFakeStore(recs ...*models.Recording) *fakeStore {
	s := &fakeStore{recordings: map[uuid.UUID]*models.Recording{}, s3Keys: map[uuid.UUID]string{}}
	for _, r := range recs {
		s.recordings[r.ID] = r
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, ok := s.recordings[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *rec
	return &clone, nil
}

func (s *fakeStore) UpdateTranscription(_ context.Context, id uuid.UUID, t models.Transcript) error {
	rec, ok := s.recordings[id]
	if !ok {
		return pgx.ErrNoRows
	}
	rec.Transcription = t
	rec.TranscriptError = ""
	return nil
}

func (s *fakeStore) MarkTranscriptionFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.failCalls++
	rec, ok := s.recordings[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if rec.Transcription == nil {
		rec.TranscriptError = reason
	}
	return nil
}

func (s *fakeStore) UpdateS3Key(_ context.Context, id uuid.UUID, key string) error {
	s.s3Keys[id] = key
	return nil
}

type fakeDecoder struct {
	buf   *audio.Buffer
	err   error
	calls int
}

func (d *fakeDecoder) DecodeFile(string) (*audio.Buffer, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.buf, nil
}

// fakeEngine fails the first failN calls, then returns segments.
type fakeEngine struct {
	segments []transcribe.RawSegment
	failN    int
	calls    int
}

func (e *fakeEngine) Transcribe([]float32) ([]transcribe.RawSegment, error) {
	e.calls++
	if e.calls <= e.failN {
		return nil, &transcribe.EngineError{Err: fmt.Errorf("inference blew up")}
	}
	return e.segments, nil
}

func (e *fakeEngine) Close() error { return nil }

type statusEvent struct {
	recordingID uuid.UUID
	status      models.TranscriptStatus
}

type fakePublisher struct {
	events []statusEvent
}

func (p *fakePublisher) PublishTranscriptionStatus(_, recordingID uuid.UUID, status models.TranscriptStatus, _ string) error {
	p.events = append(p.events, statusEvent{recordingID: recordingID, status: status})
	return nil
}

func newRecording() *models.Recording {
	userID := uuid.New()
	return &models.Recording{
		ID:       uuid.New(),
		UserID:   &userID,
		FilePath: "/tmp/recording.wav",
		FileName: "recording.wav",
		MimeType: "audio/wav",
	}
}

func transcribeJob(t *testing.T, recordingID uuid.UUID) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.TranscribePayload{RecordingID: recordingID})
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeTranscribe, Payload: payload}
}

func TestProcess_EndToEnd(t *testing.T) {
	rec := newRecording()
	store := newFakeStore(rec)
	decoder := &fakeDecoder{buf: &audio.Buffer{Samples: make([]float32, 16000), Rate: 16000}}
	engine := &fakeEngine{segments: []transcribe.RawSegment{{Start: 0.0, End: 2.3, Text: "hello world"}}}
	pub := &fakePublisher{}

	p := NewTranscriptionProcessor(store, decoder, engine, nil, nil)
	p.SetStatusPublisher(pub)

	require.NoError(t, p.Process(context.Background(), transcribeJob(t, rec.ID)))

	stored := store.recordings[rec.ID]
	require.Len(t, stored.Transcription, 1)
	assert.Equal(t, models.Segment{Start: 0.0, End: 2.3, Text: "hello world"}, stored.Transcription[0])
	assert.Equal(t, models.TranscriptDone, stored.TranscriptStatus())
	require.NotNil(t, stored.FlatText())
	assert.Equal(t, "hello world", *stored.FlatText())

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.TranscriptDone, pub.events[0].status)
	assert.Equal(t, 1, engine.calls)
}

func TestProcess_DecodeFailureIsPermanent(t *testing.T) {
	rec := newRecording()
	store := newFakeStore(rec)
	decoder := &fakeDecoder{err: &audio.DecodeError{Path: rec.FilePath, Err: fmt.Errorf("not a valid WAV container")}}
	engine := &fakeEngine{}
	pub := &fakePublisher{}

	p := NewTranscriptionProcessor(store, decoder, engine, nil, nil)
	p.SetStatusPublisher(pub)

	// nil means settled: the run loop schedules no retry.
	require.NoError(t, p.Process(context.Background(), transcribeJob(t, rec.ID)))

	stored := store.recordings[rec.ID]
	assert.Nil(t, stored.Transcription)
	assert.Equal(t, models.TranscriptFailed, stored.TranscriptStatus())
	assert.NotEmpty(t, stored.TranscriptError)
	assert.Equal(t, 0, engine.calls)
	assert.Equal(t, 1, store.failCalls)

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.TranscriptFailed, pub.events[0].status)
}

func TestProcess_RetryThenSucceed(t *testing.T) {
	rec := newRecording()
	store := newFakeStore(rec)
	decoder := &fakeDecoder{buf: &audio.Buffer{Samples: make([]float32, 1600), Rate: 16000}}
	engine := &fakeEngine{
		failN:    2,
		segments: []transcribe.RawSegment{{Start: 0, End: 1, Text: "third time lucky"}},
	}

	p := NewTranscriptionProcessor(store, decoder, engine, nil, nil)
	job := transcribeJob(t, rec.ID)

	// Drive the queue's retry policy by hand: each failure re-runs the job with
	// an incremented attempt, up to MaxRetries.
	var err error
	for attempt := 0; attempt < queue.MaxRetries; attempt++ {
		job.Attempt = attempt
		if err = p.Process(context.Background(), job); err == nil {
			break
		}
	}

	require.NoError(t, err)
	assert.Equal(t, 3, engine.calls)
	stored := store.recordings[rec.ID]
	assert.Equal(t, models.TranscriptDone, stored.TranscriptStatus())
	require.NotNil(t, stored.FlatText())
	assert.Equal(t, "third time lucky", *stored.FlatText())
}

func TestProcess_RetryExhaustionMarksFailed(t *testing.T) {
	rec := newRecording()
	store := newFakeStore(rec)
	decoder := &fakeDecoder{buf: &audio.Buffer{Samples: make([]float32, 1600), Rate: 16000}}
	engine := &fakeEngine{failN: 100}

	p := NewTranscriptionProcessor(store, decoder, engine, nil, nil)
	job := transcribeJob(t, rec.ID)

	var err error
	for job.Attempt = 0; job.Attempt < queue.MaxRetries; job.Attempt++ {
		err = p.Process(context.Background(), job)
		require.Error(t, err)
	}
	p.settleDead(context.Background(), job, err)

	assert.Equal(t, queue.MaxRetries, engine.calls)
	stored := store.recordings[rec.ID]
	assert.Nil(t, stored.Transcription)
	assert.Equal(t, models.TranscriptFailed, stored.TranscriptStatus())
	assert.Contains(t, stored.TranscriptError, "gave up")
}

// fakeQueue controls the Retry outcome so the settle paths are reachable
// without Redis.
type fakeQueue struct {
	retryErr error
	dead     bool
	retries  int
}

func (q *fakeQueue) Dequeue(context.Context) (*queue.Job, error) { return nil, nil }

func (q *fakeQueue) Retry(_ context.Context, job *queue.Job) (bool, error) {
	q.retries++
	job.Attempt++
	return q.dead, q.retryErr
}

func TestRetryEnqueueFailureMarksFailed(t *testing.T) {
	rec := newRecording()
	store := newFakeStore(rec)
	q := &fakeQueue{retryErr: fmt.Errorf("redis connection refused")}
	pub := &fakePublisher{}

	p := NewTranscriptionProcessor(store, &fakeDecoder{}, &fakeEngine{}, q, nil)
	p.SetStatusPublisher(pub)

	// A re-enqueue failure strands the job in no queue at all, so the recording
	// must settle as failed rather than stay pending with nothing in flight.
	p.retryOrSettle(context.Background(), transcribeJob(t, rec.ID), fmt.Errorf("engine: inference blew up"))

	assert.Equal(t, 1, q.retries)
	stored := store.recordings[rec.ID]
	assert.Nil(t, stored.Transcription)
	assert.Equal(t, models.TranscriptFailed, stored.TranscriptStatus())
	assert.Contains(t, stored.TranscriptError, "gave up")

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.TranscriptFailed, pub.events[0].status)
}

func TestRetryWithBudgetLeftDoesNotSettle(t *testing.T) {
	rec := newRecording()
	store := newFakeStore(rec)
	q := &fakeQueue{}

	p := NewTranscriptionProcessor(store, &fakeDecoder{}, &fakeEngine{}, q, nil)
	p.retryOrSettle(context.Background(), transcribeJob(t, rec.ID), fmt.Errorf("engine: transient"))

	assert.Equal(t, 1, q.retries)
	assert.Equal(t, models.TranscriptPending, store.recordings[rec.ID].TranscriptStatus())
	assert.Equal(t, 0, store.failCalls)
}

func TestRetryExhaustedViaDLQSettles(t *testing.T) {
	rec := newRecording()
	store := newFakeStore(rec)
	q := &fakeQueue{dead: true}

	p := NewTranscriptionProcessor(store, &fakeDecoder{}, &fakeEngine{}, q, nil)
	p.retryOrSettle(context.Background(), transcribeJob(t, rec.ID), fmt.Errorf("engine: inference blew up"))

	assert.Equal(t, models.TranscriptFailed, store.recordings[rec.ID].TranscriptStatus())
	assert.Contains(t, store.recordings[rec.ID].TranscriptError, "gave up")
}

func TestProcess_MissingRecordingIsDropped(t *testing.T) {
	store := newFakeStore()
	engine := &fakeEngine{}
	p := NewTranscriptionProcessor(store, &fakeDecoder{}, engine, nil, nil)

	require.NoError(t, p.Process(context.Background(), transcribeJob(t, uuid.New())))
	assert.Equal(t, 0, engine.calls)
	assert.Equal(t, 0, store.failCalls)
}

func TestProcess_AlreadyTranscribedIsIdempotent(t *testing.T) {
	rec := newRecording()
	rec.Transcription = models.Transcript{{Start: 0, End: 1, Text: "done before"}}
	store := newFakeStore(rec)
	engine := &fakeEngine{}
	decoder := &fakeDecoder{}

	p := NewTranscriptionProcessor(store, decoder, engine, nil, nil)
	require.NoError(t, p.Process(context.Background(), transcribeJob(t, rec.ID)))

	assert.Equal(t, 0, decoder.calls)
	assert.Equal(t, 0, engine.calls)
	require.NotNil(t, store.recordings[rec.ID].FlatText())
	assert.Equal(t, "done before", *store.recordings[rec.ID].FlatText())
}

func TestProcess_ResamplesBeforeEngine(t *testing.T) {
	rec := newRecording()
	store := newFakeStore(rec)
	// 48kHz input must be resampled down to the engine's 16kHz.
	decoder := &fakeDecoder{buf: &audio.Buffer{Samples: make([]float32, 48000), Rate: 48000}}

	var seen int
	engine := &engineFunc{fn: func(samples []float32) ([]transcribe.RawSegment, error) {
		seen = len(samples)
		return nil, nil
	}}

	p := NewTranscriptionProcessor(store, decoder, engine, nil, nil)
	require.NoError(t, p.Process(context.Background(), transcribeJob(t, rec.ID)))
	assert.Equal(t, transcribe.SampleRate, seen)
}

type engineFunc struct {
	fn func([]float32) ([]transcribe.RawSegment, error)
}

func (e *engineFunc) Transcribe(samples []float32) ([]transcribe.RawSegment, error) {
	return e.fn(samples)
}

func (e *engineFunc) Close() error { return nil }
