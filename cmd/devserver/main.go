package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/gommon/log"

	"storybook-agent/handler"
	"storybook-agent/internal/devserver"
	"storybook-agent/internal/integrations/openai"
	"storybook-agent/internal/integrations/paramstore"
	"storybook-agent/internal/repository"
	"storybook-agent/internal/usecase"
)

func main() {
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer done()

	params := paramstore.NewEnv()

	var opts []openai.Option
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	openaiClient, err := openai.NewClient(params, opts...)
	if err != nil {
		log.Fatalf("failed to create OpenAI client: %v", err)
	}

	archive, err := newArchive(ctx)
	if err != nil {
		log.Fatalf("failed to create story archive: %v", err)
	}

	storyService, err := usecase.NewStoryService(params, openaiClient, archive, usecase.Config{
		PollInterval:    envDuration("POLL_INTERVAL", time.Second),
		MaxPollAttempts: envInt("POLL_MAX_ATTEMPTS", 50),
		MaxMessageLen:   envInt("MAX_MESSAGE_LENGTH", 2000),
		MaxTurns:        envInt("MAX_CONVERSATION_TURNS", 50),
	})
	if err != nil {
		log.Fatalf("failed to create story service: %v", err)
	}
	h, err := handler.NewHandler(storyService)
	if err != nil {
		log.Fatalf("failed to create handler: %v", err)
	}

	srv := devserver.NewServer(h.Handle)
	srv.Echo.Logger.SetLevel(log.DEBUG)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	finishedShutDown := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(err)
		}
		close(finishedShutDown)
	}()

	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(err)
		done()
	}
	<-finishedShutDown
}

// newArchive uses DynamoDB when STATE_TABLE is set (DYNAMODB_ENDPOINT points
// it at DynamoDB Local) and an in-memory archive otherwise.
func newArchive(ctx context.Context) (usecase.StoryArchive, error) {
	table := os.Getenv("STATE_TABLE")
	if table == "" {
		log.Info("STATE_TABLE not set, archiving stories in memory")
		return repository.NewMemory(), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	client := awsdynamodb.NewFromConfig(cfg, func(o *awsdynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	archive, err := repository.New(client, table)
	if err != nil {
		return nil, err
	}
	log.Infof("archiving stories in DynamoDB table %s", table)
	return archive, nil
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}
