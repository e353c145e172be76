package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"harmoniq/internal/adapter/repo"
	"harmoniq/internal/domain"
	"harmoniq/internal/infra"
	"harmoniq/internal/providers/music"
	"harmoniq/internal/storage"
	"harmoniq/internal/util/audiosniff"
	"harmoniq/internal/util/redact"
)

const claimBatchSize = 5

type pollWorker struct {
	ctx         context.Context
	logger      infra.Logger
	cfg         *infra.Config
	music       *music.Dispatcher
	generations domain.GenerationRepository
	assets      domain.AssetRepository
	store       *storage.FileStore
	httpClient  *http.Client
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	fileStore, err := storage.NewFileStore(cfg.StorageDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	worker := &pollWorker{
		ctx:         ctx,
		logger:      logger,
		cfg:         cfg,
		music:       music.NewDispatcher(nil),
		generations: repo.NewGenerationRepository(pool),
		assets:      repo.NewAssetRepository(pool),
		store:       fileStore,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}

	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run claims dispatched generations in batches and drives each one to a
// terminal state before claiming the next batch.
func (w *pollWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		gens, err := w.generations.ClaimDispatched(w.ctx, claimBatchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker: failed to claim generations")
			w.sleep(w.cfg.WorkerPollBase)
			continue
		}
		if len(gens) == 0 {
			w.sleep(w.cfg.WorkerPollBase)
			continue
		}

		for i := range gens {
			w.handleGeneration(&gens[i])
		}
	}
}

func (w *pollWorker) handleGeneration(gen *domain.Generation) {
	log := w.logger.With().Str("generation_id", gen.ID).Str("provider", gen.Provider).Logger()

	if gen.UpstreamID == "" {
		msg := "generation has no upstream task id"
		_ = w.generations.UpdateStatus(w.ctx, gen.ID, domain.GenerationStatusFailed, "", nil, &msg)
		log.Error().Msg("worker: " + msg)
		return
	}
	if active := w.music.ProviderName(); active != gen.Provider {
		// The active provider changed after dispatch. Release the claim for a
		// worker configured with the original provider.
		w.release(gen.ID, nil)
		log.Warn().Str("active", active).Msg("worker: provider mismatch, skipping")
		return
	}

	log.Info().Msg("worker: polling generation")
	update, err := w.pollUntilTerminal(gen.UpstreamID)
	if err != nil {
		// Poll errors and ceiling expiry are not verdicts on the upstream
		// job. Release the claim so the record is picked up again; only the
		// vendor can fail a generation.
		msg := redact.Error(err)
		w.release(gen.ID, &msg)
		log.Error().Msg("worker: " + msg)
		return
	}

	if update.Status == music.StatusFailed {
		msg := redact.Text(update.Error)
		if msg == "" {
			msg = "provider reported failure"
		}
		_ = w.generations.UpdateStatus(w.ctx, gen.ID, domain.GenerationStatusFailed, "", nil, &msg)
		log.Info().Msg("worker: generation failed upstream")
		return
	}

	clipsJSON, _ := json.Marshal(update.Clips)
	if err := w.generations.UpdateStatus(w.ctx, gen.ID, domain.GenerationStatusComplete, update.AudioURL, clipsJSON, nil); err != nil {
		log.Error().Err(err).Msg("worker: failed to persist completion")
		return
	}
	if err := w.archiveClips(gen.ID, update.Clips); err != nil {
		log.Error().Err(err).Msg("worker: failed to archive audio")
		return
	}
	log.Info().Msg("worker: generation complete")
}

// pollUntilTerminal polls the provider with an increasing delay until the
// task reaches a terminal status or the overall ceiling elapses.
func (w *pollWorker) pollUntilTerminal(upstreamID string) (*music.StatusUpdate, error) {
	deadline := time.Now().Add(w.cfg.WorkerPollCeiling)
	delay := w.cfg.WorkerPollBase
	for {
		update, err := w.music.CheckStatus(w.ctx, upstreamID)
		if err != nil {
			return nil, err
		}
		if update.Status == music.StatusComplete || update.Status == music.StatusFailed {
			return update, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("still processing after %s, releasing for a later pass", w.cfg.WorkerPollCeiling)
		}

		select {
		case <-w.ctx.Done():
			return nil, w.ctx.Err()
		case <-time.After(delay):
		}
		delay += w.cfg.WorkerPollBase / 2
		if delay > w.cfg.WorkerPollMax {
			delay = w.cfg.WorkerPollMax
		}
	}
}

// archiveClips downloads the finished audio into local storage so downloads
// keep working after the vendor expires its URLs.
func (w *pollWorker) archiveClips(generationID string, clips []music.Clip) error {
	records := make([]domain.Asset, 0, len(clips))
	for i, clip := range clips {
		if clip.AudioURL == "" {
			continue
		}
		data, err := w.download(clip.AudioURL)
		if err != nil {
			return err
		}
		format, ok := audiosniff.Detect(data)
		if !ok {
			return fmt.Errorf("clip %d is not audio", i)
		}
		key := fmt.Sprintf("music/%s/clip-%d%s", generationID, i+1, format.Ext)
		storedKey, err := w.store.Write(w.ctx, key, data)
		if err != nil {
			return err
		}
		records = append(records, domain.Asset{
			ID:           uuid.NewString(),
			GenerationID: generationID,
			URL:          w.cfg.StorageBaseURL + "/" + storedKey,
			StoragePath:  storedKey,
			MimeType:     format.MIME,
			SizeBytes:    int64(len(data)),
			DurationSec:  clip.Duration,
			CreatedAt:    time.Now(),
		})
	}
	if len(records) == 0 {
		return nil
	}
	return w.assets.SaveAll(w.ctx, generationID, records)
}

// release puts a claimed record back into dispatched, optionally recording
// the reason the pass gave up.
func (w *pollWorker) release(id string, reason *string) {
	if err := w.generations.UpdateStatus(w.ctx, id, domain.GenerationStatusDispatched, "", nil, reason); err != nil {
		w.logger.Error().Err(err).Str("generation_id", id).Msg("worker: failed to release claim")
	}
}

func (w *pollWorker) download(url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(w.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio body: %w", err)
	}
	return data, nil
}

func (w *pollWorker) sleep(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}
