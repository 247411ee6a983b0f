package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"storybook-agent/handler"
	"storybook-agent/internal/integrations/openai"
	"storybook-agent/internal/integrations/paramstore"
	"storybook-agent/internal/repository"
	"storybook-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	svcCfg := usecase.Config{
		PollInterval:    envDuration("POLL_INTERVAL", time.Second),
		MaxPollAttempts: envInt("POLL_MAX_ATTEMPTS", 50),
		MaxMessageLen:   envInt("MAX_MESSAGE_LENGTH", 2000),
		MaxTurns:        envInt("MAX_CONVERSATION_TURNS", 50),
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg), paramPrefix)
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	archive, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create story archive", "err", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(ssmClient)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	storyService, err := usecase.NewStoryService(ssmClient, openaiClient, archive, svcCfg)
	if err != nil {
		slog.Error("failed to create story service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(storyService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
