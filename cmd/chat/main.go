package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	_ "github.com/joho/godotenv/autoload"

	"storybook-agent/internal/client"
	"storybook-agent/internal/session"
)

const width = 80

func main() {
	apiURL := flag.String("api", envOr("STORYBOOK_API_URL", "http://localhost:8080"), "storybook API base URL")
	thread := flag.String("thread", "", "resume an existing conversation handle")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "storybook"})
	if *debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := client.New(*apiURL)
	if err != nil {
		logger.Fatal("invalid API URL", "url", *apiURL, "error", err)
	}

	state, err := open(ctx, api, *thread, logger)
	if err != nil {
		logger.Fatal("could not start a story", "error", err)
	}
	logger.Info("conversation ready", "handle", state.Handle)
	_ = state.Render(os.Stdout, width)

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/new":
			state.NewStory()
			_ = state.Render(os.Stdout, width)
			continue
		case "/stories":
			listStories(ctx, api, state.Handle, logger)
			continue
		}

		if _, ok := state.AppendUser(line); !ok {
			continue
		}
		logger.Debug("sending turn", "handle", state.Handle, "chars", len(line))
		reply, err := api.Send(ctx, state.Handle, line, state.Profile)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				logger.Warn("turn rejected", "code", apiErr.Code)
				fmt.Println(apiErr.Message)
				continue
			}
			logger.Error("turn failed", "error", err)
			state.ApplyFailure()
			_ = state.RenderLast(os.Stdout, width)
			continue
		}

		mode := state.Mode
		state.ApplyReply(reply)
		if state.Mode != mode {
			_ = state.Render(os.Stdout, width)
		} else {
			_ = state.RenderLast(os.Stdout, width)
		}
	}
}

// open resumes the given conversation or creates a new one.
func open(ctx context.Context, api *client.Client, handle string, logger *log.Logger) (*session.State, error) {
	if handle == "" {
		h, err := api.CreateThread(ctx)
		if err != nil {
			return nil, err
		}
		return session.New(h), nil
	}

	state := session.New(handle)
	history, err := api.History(ctx, handle)
	if err != nil {
		logger.Warn("could not load history", "handle", handle, "error", err)
		return state, nil
	}
	state.ApplyHistory(history)
	return state, nil
}

func listStories(ctx context.Context, api *client.Client, handle string, logger *log.Logger) {
	stories, err := api.Stories(ctx, handle)
	if err != nil {
		logger.Error("could not list stories", "error", err)
		return
	}
	if len(stories) == 0 {
		fmt.Println("No saved stories yet.")
		return
	}
	for i, s := range stories {
		fmt.Printf("%d. %s (%s)\n", i+1, session.TitleFor(s.Profile), s.CreatedAt.Local().Format("Jan 2 15:04"))
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
