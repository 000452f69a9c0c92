package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/speaklens/speaklens/config"
	"github.com/speaklens/speaklens/internal/api/handlers"
	"github.com/speaklens/speaklens/internal/api/middleware"
	"github.com/speaklens/speaklens/internal/api/routes"
	"github.com/speaklens/speaklens/internal/assessment"
	"github.com/speaklens/speaklens/internal/logger"
	"github.com/speaklens/speaklens/internal/providers/embed"
	"github.com/speaklens/speaklens/internal/providers/llm"
	"github.com/speaklens/speaklens/internal/providers/stt"
	"github.com/speaklens/speaklens/internal/providers/tts"
	mongorepo "github.com/speaklens/speaklens/internal/repositories/mongo"
	pgrepo "github.com/speaklens/speaklens/internal/repositories/postgres"
	"github.com/speaklens/speaklens/internal/services"
	"github.com/speaklens/speaklens/internal/state"
	"github.com/speaklens/speaklens/internal/storage"
	"github.com/speaklens/speaklens/internal/workers"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDurationMS(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func main() {
	_ = godotenv.Load()

	l := logger.New()
	ctx := context.Background()

	// Init Redis (session store, audio stream, pub/sub)
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	fmt.Println("Redis connected")

	// Init MongoDB (results archive; optional)
	var resultRepo mongorepo.ResultRepository
	if os.Getenv("MONGO_URI") != "" {
		if err := config.InitMongo(); err != nil {
			log.Fatalf("MongoDB init error: %v", err)
		}
		if err := config.EnsureMongoIndexes(); err != nil {
			log.Fatalf("MongoDB index error: %v", err)
		}
		fmt.Println("MongoDB connected")
		resultRepo = mongorepo.NewResultRepo(config.MongoClient.Database(envOr("MONGO_DB", "speaklens")))
	} else {
		l.Warn("MONGO_URI not set; result archiving disabled")
	}

	// Init PostgreSQL (transcript log; optional)
	var transcriptRepo pgrepo.TranscriptRepo
	if os.Getenv("POSTGRES_URI") != "" {
		if err := config.InitPostgres(); err != nil {
			log.Fatalf("PostgreSQL init error: %v", err)
		}
		if err := config.EnsurePostgresSchema(); err != nil {
			log.Fatalf("PostgreSQL migrate error: %v", err)
		}
		fmt.Println("PostgreSQL connected")
		transcriptRepo = pgrepo.NewTranscriptRepo(config.PostgresDB)
	} else {
		l.Warn("POSTGRES_URI not set; transcript log disabled")
	}

	// Google Cloud providers
	projectID := os.Getenv("GCP_PROJECT_ID")
	location := envOr("GCP_LOCATION", "us-central1")
	if projectID == "" {
		log.Fatal("GCP_PROJECT_ID environment variable is not set")
	}

	sttProvider, err := stt.NewGoogleSpeech(ctx)
	if err != nil {
		log.Fatalf("Speech init error: %v", err)
	}
	defer sttProvider.Close()

	llmProvider, err := llm.NewVertexGemini(ctx, projectID, location, envOr("LLM_MODEL", "gemini-1.5-flash"))
	if err != nil {
		log.Fatalf("Vertex init error: %v", err)
	}
	defer llmProvider.Close()

	rate, _ := strconv.ParseFloat(os.Getenv("TTS_SPEAKING_RATE"), 64)
	ttsProvider, err := tts.NewGoogleTTS(ctx, tts.VoiceConfig{
		LanguageCode: envOr("TTS_LANGUAGE_CODE", "en-US"),
		VoiceName:    envOr("TTS_VOICE_NAME", "en-US-Neural2-F"),
		SpeakingRate: rate,
	})
	if err != nil {
		log.Fatalf("TTS init error: %v", err)
	}
	defer ttsProvider.Close()

	var embedder embed.Provider
	if ve, err := embed.NewVertexEmbedder(ctx, projectID, location, envOr("EMBED_MODEL", "text-embedding-004")); err != nil {
		l.WithError(err).Warn("embedder init failed; transcript embeddings disabled")
	} else {
		embedder = ve
		defer ve.Close()
	}

	var audioStore storage.AudioStore
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		gcsStore, err := storage.NewGCSAudioStore(ctx, bucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer gcsStore.Close()
		audioStore = gcsStore
	} else {
		l.Warn("GCS_BUCKET not set; raw audio retention disabled")
	}

	engine := &assessment.Engine{
		Table:      assessment.DefaultPhaseTable(),
		LLM:        llmProvider,
		TTS:        ttsProvider,
		Thresholds: assessment.ThresholdsFromEnv(),
		Logger:     l,
	}

	svc := services.NewAssessmentService(services.Deps{
		Store:       state.NewRedisStore(config.RedisClient),
		Engine:      engine,
		STT:         sttProvider,
		Audio:       audioStore,
		Transcripts: transcriptRepo,
		Results:     resultRepo,
		Embedder:    embedder,
		Redis:       config.RedisClient,
		Logger:      l,
	})

	// Background workers
	sweeper := &workers.Sweeper{
		Store:         state.NewRedisStore(config.RedisClient),
		Interval:      envDurationMS("SWEEP_INTERVAL", 60*time.Second),
		IdleThreshold: envDurationMS("SESSION_TIMEOUT", 5*time.Minute),
		Logger:        l,
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("Sweeper start error: %v", err)
	}

	numWorkers, _ := strconv.Atoi(os.Getenv("TURN_WORKERS"))
	pool := &workers.TurnWorkerPool{
		Redis:      config.RedisClient,
		Service:    svc,
		NumWorkers: numWorkers,
		Logger:     l,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("Turn worker start error: %v", err)
	}

	// Start Gin server
	r := gin.Default()
	r.Use(middleware.RequestLogger(l))

	routes.RegisterRoutes(r, routes.Deps{
		Session:    handlers.NewSessionHandler(svc),
		Assessment: handlers.NewAssessmentHandler(svc, engine.Table),
		Audio:      handlers.NewAudioHandler(svc),
		WS:         handlers.NewWSHandler(svc, config.RedisClient, pool.Stream),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}
