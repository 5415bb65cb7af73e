// Package worker runs the transcription job: decode audio, run the engine,
// normalize, persist. It is the only place that classifies failures.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voicevault/backend/internal/audio"
	"github.com/voicevault/backend/internal/models"
	"github.com/voicevault/backend/internal/transcribe"
	"github.com/voicevault/backend/pkg/queue"
)

// RecordingStore is the persistence surface the job needs.
type RecordingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	UpdateTranscription(ctx context.Context, id uuid.UUID, transcript models.Transcript) error
	MarkTranscriptionFailed(ctx context.Context, id uuid.UUID, reason string) error
	UpdateS3Key(ctx context.Context, id uuid.UUID, key string) error
}

// AudioDecoder reads a stored file into a sample buffer.
type AudioDecoder interface {
	DecodeFile(path string) (*audio.Buffer, error)
}

// JobQueue dequeues jobs and re-enqueues retryable failures with a bounded
// attempt count.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (dead bool, err error)
}

// StatusPublisher pushes transcription status changes to connected clients.
// Implementations must tolerate nothing listening.
type StatusPublisher interface {
	PublishTranscriptionStatus(userID, recordingID uuid.UUID, status models.TranscriptStatus, reason string) error
}

// Archiver mirrors a finished recording's audio to object storage.
type Archiver interface {
	ArchiveRecording(ctx context.Context, rec *models.Recording) (key string, err error)
}

// TranscriptionProcessor processes transcription jobs. Permanent failures
// (missing recording, undecodable file) are terminal on first occurrence;
// engine and persistence failures go back through the queue's retry budget.
type TranscriptionProcessor struct {
	store     RecordingStore
	decoder   AudioDecoder
	engine    transcribe.Engine
	queue     JobQueue
	publisher StatusPublisher
	archiver  Archiver
	logger    *zap.Logger
}

// NewTranscriptionProcessor creates a transcription job processor. publisher and
// archiver may be nil.
func NewTranscriptionProcessor(store RecordingStore, decoder AudioDecoder, engine transcribe.Engine, q JobQueue, logger *zap.Logger) *TranscriptionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptionProcessor{store: store, decoder: decoder, engine: engine, queue: q, logger: logger}
}

// SetStatusPublisher sets the optional status push channel.
func (p *TranscriptionProcessor) SetStatusPublisher(pub StatusPublisher) { p.publisher = pub }

// SetArchiver sets the optional S3 archive step.
func (p *TranscriptionProcessor) SetArchiver(a Archiver) { p.archiver = a }

// Process executes one transcription job. A nil return means the job is settled:
// either the transcript was persisted or the failure was terminal and recorded.
// A non-nil return is retryable and goes back to the queue.
func (p *TranscriptionProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeTranscribe {
		p.logger.Warn("unknown job type", zap.String("type", string(job.Type)))
		return nil
	}
	var payload queue.TranscribePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		p.logger.Warn("invalid job payload", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	rec, err := p.store.GetByID(ctx, payload.RecordingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			p.logger.Warn("recording gone, dropping job", zap.String("recording_id", payload.RecordingID.String()))
			return nil
		}
		return fmt.Errorf("load recording %s: %w", payload.RecordingID, err)
	}
	if rec.Transcription != nil {
		p.logger.Info("recording already transcribed", zap.String("recording_id", rec.ID.String()))
		return nil
	}

	buf, err := p.decoder.DecodeFile(rec.FilePath)
	if err != nil {
		var decodeErr *audio.DecodeError
		if errors.As(err, &decodeErr) {
			p.fail(ctx, rec, fmt.Sprintf("audio decode failed: %v", decodeErr.Err))
			return nil
		}
		return fmt.Errorf("decode %s: %w", rec.FilePath, err)
	}

	samples := audio.Resample(buf, transcribe.SampleRate)
	raw, err := p.engine.Transcribe(samples)
	if err != nil {
		return fmt.Errorf("transcribe recording %s: %w", rec.ID, err)
	}

	transcript := transcribe.Normalize(raw)
	if err := p.store.UpdateTranscription(ctx, rec.ID, transcript); err != nil {
		return fmt.Errorf("persist transcription %s: %w", rec.ID, err)
	}

	p.publish(rec, models.TranscriptDone, "")
	p.logger.Info("recording transcribed",
		zap.String("recording_id", rec.ID.String()),
		zap.Int("segments", len(transcript)),
		zap.Float64("audio_seconds", float64(len(buf.Samples))/float64(buf.Rate)))

	p.archive(ctx, rec)
	return nil
}

// fail records a terminal failure and notifies listeners.
func (p *TranscriptionProcessor) fail(ctx context.Context, rec *models.Recording, reason string) {
	if err := p.store.MarkTranscriptionFailed(ctx, rec.ID, reason); err != nil {
		p.logger.Error("mark transcription failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
	}
	p.publish(rec, models.TranscriptFailed, reason)
	p.logger.Warn("transcription failed permanently", zap.String("recording_id", rec.ID.String()), zap.String("reason", reason))
}

func (p *TranscriptionProcessor) publish(rec *models.Recording, status models.TranscriptStatus, reason string) {
	if p.publisher == nil || rec.UserID == nil {
		return
	}
	if err := p.publisher.PublishTranscriptionStatus(*rec.UserID, rec.ID, status, reason); err != nil {
		p.logger.Warn("publish status failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
	}
}

// archive mirrors the audio file to object storage. Best effort: the transcript
// is already persisted, so archive errors only log.
func (p *TranscriptionProcessor) archive(ctx context.Context, rec *models.Recording) {
	if p.archiver == nil {
		return
	}
	key, err := p.archiver.ArchiveRecording(ctx, rec)
	if err != nil {
		p.logger.Warn("archive recording failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		return
	}
	if err := p.store.UpdateS3Key(ctx, rec.ID, key); err != nil {
		p.logger.Error("store archive key failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
	}
}

// Run starts the worker loop: dequeue, process, retry on retryable failure.
// Retry exhaustion converts to a terminal failure on the recording.
func (p *TranscriptionProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("transcription worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			p.retryOrSettle(ctx, job, err)
			time.Sleep(queue.RetryBackoff)
		}
	}
}

// retryOrSettle re-enqueues a retryable failure. When the retry budget is spent
// or the re-enqueue itself fails, the job exists in no queue anymore; settle the
// recording as terminally failed so it cannot sit in pending forever.
func (p *TranscriptionProcessor) retryOrSettle(ctx context.Context, job *queue.Job, cause error) {
	dead, err := p.queue.Retry(ctx, job)
	if err != nil {
		p.logger.Error("retry enqueue failed", zap.Error(err), zap.String("job_id", job.ID))
	}
	if dead || err != nil {
		p.settleDead(ctx, job, cause)
	}
}

// settleDead marks the recording terminally failed after the retry budget is spent.
func (p *TranscriptionProcessor) settleDead(ctx context.Context, job *queue.Job, cause error) {
	var payload queue.TranscribePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return
	}
	rec, err := p.store.GetByID(ctx, payload.RecordingID)
	if err != nil || rec.Transcription != nil {
		return
	}
	p.fail(ctx, rec, fmt.Sprintf("gave up after %d attempts: %v", job.Attempt, cause))
}
