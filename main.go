package main

import (
	"github.com/docker/go-units"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"github.com/A-Boumard/zest-wiki/internal"
	"github.com/A-Boumard/zest-wiki/internal/chunkstore"
	"github.com/A-Boumard/zest-wiki/internal/health"
	"github.com/A-Boumard/zest-wiki/internal/session"
	"github.com/A-Boumard/zest-wiki/internal/tempfile"
	"github.com/A-Boumard/zest-wiki/internal/upload"
	"github.com/A-Boumard/zest-wiki/internal/verify"
)

func main() {
	config, err := internal.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
		return
	}

	db, err := internal.NewDB(config.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
		return
	}

	backend, err := chunkstore.NewBackend(&chunkstore.BackendConfig{
		Type:        chunkstore.BackendType(config.Storage.Backend),
		LocalPath:   config.Storage.LocalPath,
		ExternalURL: config.Storage.ExternalURL,
		S3Endpoint:  config.Storage.S3.Endpoint,
		S3Bucket:    config.Storage.S3.Bucket,
		S3AccessKey: config.Storage.S3.AccessKey,
		S3SecretKey: config.Storage.S3.SecretKey,
		S3Region:    config.Storage.S3.Region,
		S3UseSSL:    config.Storage.S3.UseSSL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing storage backend")
		return
	}

	maxUploadSize, err := config.Upload.MaxUploadBytes()
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing upload size limit")
		return
	}

	var scanner *verify.Scanner
	if config.Scanner.URL != "" {
		scanner = verify.NewScanner(config.Scanner.URL)
	}

	store := chunkstore.New(backend, chunkstore.DefaultZone)
	repo := session.NewPostgresRepository(db)
	verifier := verify.NewFileVerifier(scanner)
	tempFiles := tempfile.NewFactory(config.Upload.ScratchDir, "assemble")
	promoter := upload.NewBackendPromoter(backend)

	coordinator := upload.NewCoordinator(repo, store, verifier, tempFiles, promoter, maxUploadSize)
	uploadEndpoints := upload.NewEndpoints(coordinator)
	healthEndpoints := health.NewEndpoints("1.0.0", db)

	sweeper := upload.NewSweeper(coordinator, config.Upload.SessionTTL, config.Upload.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	log.Info().
		Str("addr", config.Server.ListenAddr).
		Str("backend", config.Storage.Backend).
		Str("maxUploadSize", units.HumanSizeWithPrecision(float64(maxUploadSize), 3)).
		Msg("Starting chunked upload service")

	requestHandler := internal.NewRequestHandler(config, uploadEndpoints, healthEndpoints)

	if err := fasthttp.ListenAndServe(config.Server.ListenAddr, requestHandler); err != nil {
		log.Fatal().Err(err).Msg("Error starting server")
	}
}
