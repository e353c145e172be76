package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"harmoniq/internal/adapter/repo"
	"harmoniq/internal/domain"
	"harmoniq/internal/http/handlers"
	"harmoniq/internal/http/httpapi"
	"harmoniq/internal/infra"
	"harmoniq/internal/infra/geoip"
	"harmoniq/internal/providers/lyrics"
	"harmoniq/internal/providers/music"
	"harmoniq/internal/providers/sfx"
	"harmoniq/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := storage.NewFileStore(cfg.StorageDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	generations := repo.NewGenerationRepository(dbpool)
	assets := repo.NewAssetRepository(dbpool)
	apiKeys := repo.NewAPIKeyRepository(dbpool)

	app := &handlers.App{
		Logger:      logger,
		Cfg:         cfg,
		Music:       music.NewDispatcher(nil),
		SFX:         newSFXGenerator(cfg),
		Lyrics:      newLyricsWriter(cfg, logger),
		Generations: generations,
		Assets:      assets,
		Store:       store,
	}

	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var lookup func(ip string) (string, error)
	if countries != nil {
		lookup = countries.CountryCode
	}

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultLocale:  "en",
		CountryLookup:  lookup,
		ResolveAPIKey: func(ctx context.Context, keyHash string) (*domain.APIKey, error) {
			key, err := apiKeys.GetByHash(ctx, keyHash)
			if err != nil {
				return nil, err
			}
			if err := apiKeys.Touch(ctx, key.ID); err != nil {
				logger.Warn().Err(err).Msg("failed to stamp api key usage")
			}
			return key, nil
		},
		RateLimit: cfg.RateLimitPerMin,
		StaticDir: cfg.StorageDir,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// newSFXGenerator picks the sound-effect vendor from configuration. A nil
// generator leaves the endpoint answering 503 until credentials arrive.
func newSFXGenerator(cfg *infra.Config) sfx.Generator {
	switch cfg.SFXProvider {
	case "elevenlabs":
		if cfg.ElevenLabsAPIKey == "" {
			return nil
		}
		return sfx.NewElevenLabs(sfx.ElevenLabsOptions{
			APIKey:  cfg.ElevenLabsAPIKey,
			BaseURL: cfg.ElevenLabsURL,
		})
	default:
		if cfg.StableAudioAPIKey == "" {
			return nil
		}
		return sfx.NewStableAudio(sfx.StableAudioOptions{
			APIKey:  cfg.StableAudioAPIKey,
			BaseURL: cfg.StableAudioURL,
		})
	}
}

func newLyricsWriter(cfg *infra.Config, logger infra.Logger) lyrics.Writer {
	static := lyrics.NewStaticWriter()
	if cfg.OpenAIAPIKey == "" {
		return static
	}
	return lyrics.NewOpenAIWriter(lyrics.OpenAIOptions{
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.OpenAIModel,
		BaseURL:  cfg.OpenAIBaseURL,
		Fallback: static,
		OnFallback: func(reason string, err error) {
			logger.Warn().Err(err).Str("reason", reason).Msg("lyrics writer fell back to template")
		},
	})
}
