package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lunigy/thumbnail-service/internal/domain/entity"
	"github.com/lunigy/thumbnail-service/internal/infra/email"
	"github.com/lunigy/thumbnail-service/internal/infra/ffmpeg"
	miniostorage "github.com/lunigy/thumbnail-service/internal/infra/minio"
	"github.com/lunigy/thumbnail-service/internal/infra/postgres"
	"github.com/lunigy/thumbnail-service/internal/infra/rabbitmq"
	"github.com/lunigy/thumbnail-service/internal/usecase"
	"github.com/lunigy/thumbnail-service/pkg/logger"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

type stack struct {
	pgConnStr     string
	rmqURL        string
	minioEndpoint string
	pool          *pgxpool.Pool
	storage       *miniostorage.Storage
	rmqConn       *amqp.Connection
}

func startStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("thumbnails"),
		tcpostgres.WithUsername("thumb_user"),
		tcpostgres.WithPassword("thumb_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(ctx) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(ctx) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    minioEndpoint,
		AccessKey:   "minioadmin",
		SecretKey:   "minioadmin",
		UseSSL:      false,
		VideoBucket: "videos",
		ThumbBucket: "thumbnails",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { rmqConn.Close() })

	return &stack{
		pgConnStr:     pgConnStr,
		rmqURL:        rmqURL,
		minioEndpoint: minioEndpoint,
		pool:          pool,
		storage:       storage,
		rmqConn:       rmqConn,
	}
}

func startWorker(t *testing.T, ctx context.Context, s *stack) {
	t.Helper()

	log, _ := logger.New("debug")

	pub, err := rabbitmq.NewPublisher(s.rmqConn, "lunigy.thumbnail")
	require.NoError(t, err)

	progressPub := rabbitmq.NewProgressPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "thumbnail.request.dlq")

	repo := postgres.NewJobRepository(s.pool)
	extractor := ffmpeg.NewExtractor("ffmpeg", "ffprobe", log)
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)

	uc := usecase.NewThumbnailUseCase(
		repo, s.storage, extractor, extractor,
		progressPub, dlqPub, notifier,
		log,
		usecase.ThumbnailConfig{
			TempDir:             t.TempDir(),
			MaxRetries:          3,
			DefaultTrimQuality:  50,
			DefaultCoverQuality: 10,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:           s.rmqURL,
		Queue:         "thumbnail.request",
		Exchange:      "lunigy.thumbnail",
		DLQ:           "thumbnail.request.dlq",
		ProgressQueue: "thumbnail.progress",
		Prefetch:      1,
		WorkerCount:   1,
		BaseDelayMs:   100,
	}, uc.Execute, log)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	t.Cleanup(consumerCancel)

	go func() {
		consumer.Start(consumerCtx)
	}()

	// Give the consumer time to start
	time.Sleep(500 * time.Millisecond)
}

func TestTrimThumbnailsEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	testVideoPath := filepath.Join("..", "testdata", "test.mp4")
	if _, err := os.Stat(testVideoPath); os.IsNotExist(err) {
		t.Skip("test video not found at tests/testdata/test.mp4 - generate it with: ffmpeg -f lavfi -i testsrc=duration=10:size=320x240:rate=1 -c:v libx264 -pix_fmt yuv420p tests/testdata/test.mp4")
	}

	s := startStack(t, ctx)
	startWorker(t, ctx, s)

	minioClient, err := miniogo.New(s.minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	videoKey := "testuser/test.mp4"
	_, err = minioClient.FPutObject(ctx, "videos", videoKey, testVideoPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	jobID := uuid.New()
	const quantity = 5
	requestMsg := entity.ThumbnailRequestMessage{
		JobID:    jobID,
		UserID:   "testuser",
		VideoKey: videoKey,
		Kind:     entity.KindTrim,
		Quantity: quantity,
		// DurationMs deliberately unset so the worker probes it.
		TrimQuality: 50,
		UserEmail:   "test@test.local",
	}
	msgBody, err := json.Marshal(requestMsg)
	require.NoError(t, err)

	pubCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"lunigy.thumbnail",
		"thumbnail.request",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBody,
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	progressCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer progressCh.Close()

	progressMsgs, err := progressCh.Consume("thumbnail.progress", "", true, false, false, false, nil)
	require.NoError(t, err)

	var received []entity.ThumbnailProgressMessage
	deadline := time.After(2 * time.Minute)
	for {
		var done bool
		select {
		case delivery := <-progressMsgs:
			var m entity.ThumbnailProgressMessage
			require.NoError(t, json.Unmarshal(delivery.Body, &m))
			received = append(received, m)
			done = m.Status == entity.JobStatusCompleted || m.Status == entity.JobStatusFailed
		case <-deadline:
			t.Fatal("timeout waiting for progress messages")
		}
		if done {
			break
		}
	}

	// One cumulative snapshot per attempt plus the terminal message.
	require.Len(t, received, quantity+1)
	prev := 0
	for _, m := range received[:quantity] {
		assert.Equal(t, entity.JobStatusProcessing, m.Status)
		assert.GreaterOrEqual(t, len(m.Covers), prev)
		assert.LessOrEqual(t, len(m.Covers), prev+1)
		prev = len(m.Covers)
	}

	final := received[quantity]
	assert.Equal(t, jobID, final.JobID)
	assert.Equal(t, entity.JobStatusCompleted, final.Status)
	// Seeking to the very last timestamp can land past the final frame, so
	// allow one miss.
	assert.GreaterOrEqual(t, final.Extracted, quantity-1)
	require.Len(t, final.Covers, final.Extracted)

	// Every referenced thumbnail exists in the bucket and is non-empty.
	for _, c := range final.Covers {
		obj, err := minioClient.StatObject(ctx, "thumbnails", c.Key, miniogo.StatObjectOptions{})
		require.NoError(t, err, "thumbnail %s missing", c.Key)
		assert.Greater(t, obj.Size, int64(0))
	}

	// Job record reflects the outcome.
	var dbStatus string
	var dbExtracted int
	err = s.pool.QueryRow(ctx,
		"SELECT status, extracted FROM thumbnail_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbExtracted)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, final.Extracted, dbExtracted)

	t.Logf("Test passed: %d thumbnails extracted for job %s", final.Extracted, jobID)
}

func TestMalformedRequestGoesToDLQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := startStack(t, ctx)
	startWorker(t, ctx, s)

	pubCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"lunigy.thumbnail",
		"thumbnail.request",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{invalid json`),
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	time.Sleep(2 * time.Second)

	dlqCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get("thumbnail.request.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))

	t.Log("Test passed: malformed message sent to DLQ")
}
