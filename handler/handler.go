package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"storybook-agent/internal/domain"
	"storybook-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// StoryUseCase is the orchestration surface served over HTTP.
type StoryUseCase interface {
	CreateConversation(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, in usecase.SendInput) (domain.TurnResult, error)
	History(ctx context.Context, handle string) ([]domain.HistoryMessage, error)
	Stories(ctx context.Context, handle string) ([]domain.ArchivedStory, error)
}

type Handler struct {
	uc     StoryUseCase
	logger *slog.Logger
}

func NewHandler(uc StoryUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, logger: slog.Default()}, nil
}

type runRequest struct {
	ConversationHandle string              `json:"conversationHandle"`
	Text               string              `json:"text"`
	StoryProfile       domain.StoryProfile `json:"storyProfile,omitempty"`
	HistoryRequested   bool                `json:"historyRequested"`
}

type createResponse struct {
	Success            bool   `json:"success"`
	ConversationHandle string `json:"conversationHandle"`
}

type historyResponse struct {
	Success bool                    `json:"success"`
	History []domain.HistoryMessage `json:"history"`
}

type storiesResponse struct {
	Success bool                   `json:"success"`
	Stories []domain.ArchivedStory `json:"stories"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// Handle routes an API Gateway proxy request. Failures are always rendered
// as an error body, so the returned error is reserved for the runtime.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	log := h.logger.With("correlation_id", corrID, "method", req.HTTPMethod, "path", req.Path)

	path := strings.TrimRight(req.Path, "/")
	switch {
	case req.HTTPMethod == http.MethodPost && path == "/threads":
		return h.createThread(ctx, log, corrID)
	case req.HTTPMethod == http.MethodPost && path == "/threads/run":
		return h.run(ctx, log, corrID, req.Body)
	case req.HTTPMethod == http.MethodGet && strings.HasPrefix(path, "/stories/"):
		handle := req.PathParameters["handle"]
		if handle == "" {
			handle = strings.TrimPrefix(path, "/stories/")
		}
		return h.stories(ctx, log, corrID, handle)
	}

	log.Warn("route not found")
	return writeJSON(http.StatusNotFound, corrID, errorResponse{Error: "Not found.", Code: "NOT_FOUND"}), nil
}

func (h *Handler) createThread(ctx context.Context, log *slog.Logger, corrID string) (events.APIGatewayProxyResponse, error) {
	handle, err := h.uc.CreateConversation(ctx)
	if err != nil {
		return h.writeError(log, corrID, err), nil
	}
	log.Info("conversation created", "conversation", handle)
	return writeJSON(http.StatusOK, corrID, createResponse{Success: true, ConversationHandle: handle}), nil
}

func (h *Handler) run(ctx context.Context, log *slog.Logger, corrID, body string) (events.APIGatewayProxyResponse, error) {
	var req runRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		log.Warn("invalid request body", "err", err)
		return writeJSON(http.StatusBadRequest, corrID, errorResponse{
			Error: "Request body must be a JSON object.",
			Code:  string(usecase.ErrorInvalidInput),
		}), nil
	}
	log = log.With("conversation", req.ConversationHandle)

	if req.HistoryRequested {
		history, err := h.uc.History(ctx, req.ConversationHandle)
		if err != nil {
			return h.writeError(log, corrID, err), nil
		}
		if history == nil {
			history = []domain.HistoryMessage{}
		}
		return writeJSON(http.StatusOK, corrID, historyResponse{Success: true, History: history}), nil
	}

	out, err := h.uc.SendMessage(ctx, usecase.SendInput{
		ConversationHandle: req.ConversationHandle,
		Text:               req.Text,
		StoryProfile:       req.StoryProfile,
	})
	if err != nil {
		return h.writeError(log, corrID, err), nil
	}
	log.Info("turn completed", "is_complete", out.IsComplete)
	return writeJSON(http.StatusOK, corrID, out), nil
}

func (h *Handler) stories(ctx context.Context, log *slog.Logger, corrID, handle string) (events.APIGatewayProxyResponse, error) {
	stories, err := h.uc.Stories(ctx, handle)
	if err != nil {
		return h.writeError(log, corrID, err), nil
	}
	if stories == nil {
		stories = []domain.ArchivedStory{}
	}
	return writeJSON(http.StatusOK, corrID, storiesResponse{Success: true, Stories: stories}), nil
}

func (h *Handler) writeError(log *slog.Logger, corrID string, err error) events.APIGatewayProxyResponse {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		ue = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected_error", Err: err}
	}
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "code", ue.Code, "reason", ue.Reason, "err", ue.Err)
	} else {
		log.Warn("request rejected", "code", ue.Code, "reason", ue.Reason)
	}
	return writeJSON(status, corrID, errorResponse{Error: ue.UserMessage(), Code: string(ue.Code)})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorInvalidMessage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func writeJSON(status int, corrID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"Something went wrong. Please try again.","code":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}
