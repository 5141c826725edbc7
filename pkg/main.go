package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	pkg "git.solsynth.dev/hypernet/helpdesk/pkg/internal"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/cache"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/database"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/fs"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/grpc"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/server"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/server/api"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")

	viper.SetDefault("scanner.timeout", services.DefaultScanTimeout)
	viper.SetDefault("nats.subject", services.DefaultActivitySubject)
	viper.SetDefault("workers.replicas", 2)
	viper.SetDefault("workers.replicas_queue", 256)

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}

	// Connect to database
	if err := database.NewSource(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connect to database.")
	} else if err := database.RunMigration(database.C); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
	}

	// Initialize cache
	if err := cache.NewStore(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when initializing cache.")
	}

	// Prepare storage
	uploadsDest, err := fs.LoadDestination[models.LocalDestination]("storage.uploads", models.DestinationTypeLocal)
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when loading uploads destination.")
	}
	quarantineDest, err := fs.LoadDestination[models.LocalDestination]("storage.quarantine", models.DestinationTypeLocal)
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when loading quarantine destination.")
	}
	storage, err := services.NewLocalStorage(uploadsDest.Path, quarantineDest.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when preparing storage.")
	}

	repo := services.NewGormRepository(database.C)
	metadata := services.NewMetadataCache(cache.S)
	probes := map[string]grpc.Probe{
		"database": func(ctx context.Context) error {
			sqlDB, err := database.C.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	uploader := services.NewUploader(repo, storage)
	uploader.Metadata = metadata
	uploader.ScanTimeout = viper.GetDuration("scanner.timeout")

	// Connect other services
	if addr := viper.GetString("scanner.clamd"); len(addr) > 0 {
		clamd := services.NewClamdScanner(addr)
		if err := clamd.Ping(); err != nil {
			log.Warn().Err(err).Str("addr", addr).Msg("Unable to reach clamd, scans will fail until it is up...")
		}
		uploader.Scanner = clamd
		probes["scanner"] = func(context.Context) error { return clamd.Ping() }
	}

	activity := services.MultiActivity{services.NewDatabaseActivity(database.C)}
	if url := viper.GetString("nats.url"); len(url) > 0 {
		if nc, err := services.NewNatsActivity(url, viper.GetString("nats.subject")); err != nil {
			log.Error().Err(err).Msg("An error occurred when connecting to nats, activities will only be stored locally...")
		} else {
			activity = append(activity, nc)
			defer nc.Close()
		}
	}
	uploader.Activity = activity

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up some workers
	var replicator *services.Replicator
	if viper.GetBool("replicas.enabled") {
		dest, err := fs.LoadDestination[models.S3Destination]("replicas.destination", models.DestinationTypeS3)
		if err != nil {
			log.Fatal().Err(err).Msg("An error occurred when loading replica destination.")
		}
		client, err := services.NewS3Client(dest)
		if err != nil {
			log.Fatal().Err(err).Msg("An error occurred when configuring replica destination.")
		}
		replicator = services.NewReplicator(repo, storage, dest, client, viper.GetInt("workers.replicas_queue"))
		uploader.Replicas = replicator
		for idx := 0; idx < viper.GetInt("workers.replicas"); idx++ {
			go replicator.StartConsumeReplicaTask(ctx)
		}
	}

	// Configure timed tasks
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	quartz.AddFunc("@every 60m", func() { services.DoStalePartialCleanup(storage) })
	if replicator != nil {
		quartz.AddFunc("@every 60m", func() { replicator.RetryFailedReplicas(ctx) })
	}
	quartz.Start()

	// Server
	handlers := &api.Handlers{
		Uploader:   uploader,
		Repository: repo,
		Settings:   services.NewCachedSettings(services.NewDatabaseSettings(database.C), cache.S),
		Storage:    storage,
		Metadata:   metadata,
		Replicator: replicator,
	}
	if replicator != nil {
		handlers.Replicas = repo
	}
	server.NewServer(handlers)
	go server.Listen()

	// Grpc Server
	grpcServer := grpc.NewGrpc(probes)
	go func() {
		if err := grpcServer.Listen(); err != nil {
			log.Error().Err(err).Msg("An error occurred when starting grpc server...")
		}
	}()

	// Messages
	log.Info().Msgf("Helpdesk v%s is started...", pkg.AppVersion)

	services.DoStalePartialCleanup(storage)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msgf("Helpdesk v%s is quitting...", pkg.AppVersion)

	quartz.Stop()
	grpcServer.Stop()
	if err := server.Shutdown(); err != nil {
		log.Error().Err(err).Msg("An error occurred when shutting down server...")
	}
}
