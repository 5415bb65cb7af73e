package transcribe

import (
	"fmt"
	"io"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"
)

// WhisperEngine implements Engine via whisper.cpp. The model is loaded once and
// shared for the process lifetime; whisper contexts are not safe for concurrent
// use, so calls are serialized with a mutex. Thread count controls lanes inside
// a single inference, not job-level concurrency.
type WhisperEngine struct {
	mu       sync.Mutex
	model    whisper.Model
	language string
	threads  uint
	logger   *zap.Logger
}

// NewWhisperEngine loads a whisper.cpp model from disk. The caller must Close it.
func NewWhisperEngine(modelPath, language string, threads int, logger *zap.Logger) (*WhisperEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, &EngineError{Err: fmt.Errorf("load model %q: %w", modelPath, err)}
	}
	if threads <= 0 {
		threads = 1
	}
	logger.Info("whisper model loaded", zap.String("path", modelPath), zap.String("language", language), zap.Int("threads", threads))
	return &WhisperEngine{model: model, language: language, threads: uint(threads), logger: logger}, nil
}

// Transcribe runs inference on mono 16kHz float32 samples and returns the
// ordered segment list.
func (w *WhisperEngine) Transcribe(samples []float32) ([]RawSegment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, err := w.model.NewContext()
	if err != nil {
		return nil, &EngineError{Err: fmt.Errorf("new context: %w", err)}
	}

	ctx.SetTranslate(false)
	ctx.SetThreads(w.threads)
	if w.language != "" {
		if err := ctx.SetLanguage(w.language); err != nil {
			return nil, &EngineError{Err: fmt.Errorf("set language %q: %w", w.language, err)}
		}
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return nil, &EngineError{Err: fmt.Errorf("process: %w", err)}
	}

	var segments []RawSegment
	for {
		seg, err := ctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &EngineError{Err: fmt.Errorf("next segment: %w", err)}
		}
		segments = append(segments, RawSegment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  seg.Text,
		})
	}
	return segments, nil
}

// Close releases the model.
func (w *WhisperEngine) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model != nil {
		err := w.model.Close()
		w.model = nil
		return err
	}
	return nil
}
