package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"storybook-agent/internal/domain"
	"storybook-agent/internal/usecase"
)

type stubUseCase struct {
	handle string
	out    domain.TurnResult
	hist   []domain.HistoryMessage
	saved  []domain.ArchivedStory
	err    error

	in          usecase.SendInput
	historyFor  string
	storiesFor  string
	sendCalls   int
	createCalls int
}

func (s *stubUseCase) CreateConversation(_ context.Context) (string, error) {
	s.createCalls++
	return s.handle, s.err
}

func (s *stubUseCase) SendMessage(_ context.Context, in usecase.SendInput) (domain.TurnResult, error) {
	s.sendCalls++
	s.in = in
	return s.out, s.err
}

func (s *stubUseCase) History(_ context.Context, handle string) ([]domain.HistoryMessage, error) {
	s.historyFor = handle
	return s.hist, s.err
}

func (s *stubUseCase) Stories(_ context.Context, handle string) ([]domain.ArchivedStory, error) {
	s.storiesFor = handle
	return s.saved, s.err
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, uc *stubUseCase) *Handler {
	t.Helper()
	h, err := NewHandler(uc)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_CreateThread(t *testing.T) {
	uc := &stubUseCase{handle: "thread_abc"}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/threads", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[createResponse](t, resp.Body)
	require.True(t, out.Success)
	require.Equal(t, "thread_abc", out.ConversationHandle)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_SendMessage(t *testing.T) {
	uc := &stubUseCase{out: domain.TurnResult{
		Success:      true,
		Message:      "raw reply",
		Story:        "Once upon a time",
		StoryProfile: domain.StoryProfile{"childName": "Mia", "storyText": "Once upon a time"},
		IsComplete:   true,
	}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/threads/run",
		`{"conversationHandle":"thread_1","text":"a dragon","storyProfile":{"childAge":6}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "thread_1", uc.in.ConversationHandle)
	require.Equal(t, "a dragon", uc.in.Text)
	require.Equal(t, float64(6), uc.in.StoryProfile["childAge"])

	out := parseBody[domain.TurnResult](t, resp.Body)
	require.True(t, out.Success)
	require.True(t, out.IsComplete)
	require.Equal(t, "raw reply", out.Message)
	require.Equal(t, "Once upon a time", out.Story)
	require.Equal(t, "Mia", out.StoryProfile.ChildName())
}

func TestHandle_SendMessageOmitsEmptyProfile(t *testing.T) {
	uc := &stubUseCase{out: domain.TurnResult{Success: true, Message: "Tell me more about Mia."}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/threads/run", `{"conversationHandle":"thread_1","text":"hi"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"message":"Tell me more about Mia.","isComplete":false}`, resp.Body)
}

func TestHandle_History(t *testing.T) {
	uc := &stubUseCase{hist: []domain.HistoryMessage{{ChatMessage: domain.ChatMessage{ID: "msg_1", Role: domain.RoleAssistant, Text: "Hi"}}}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/threads/run", `{"conversationHandle":"thread_1","historyRequested":true}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "thread_1", uc.historyFor)
	require.Zero(t, uc.sendCalls)

	out := parseBody[historyResponse](t, resp.Body)
	require.True(t, out.Success)
	require.Len(t, out.History, 1)
	require.Equal(t, "Hi", out.History[0].Text)
}

func TestHandle_EmptyHistoryIsArray(t *testing.T) {
	h := newTestHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/threads/run", `{"conversationHandle":"thread_1","historyRequested":true}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"history":[]}`, resp.Body)
}

func TestHandle_Stories(t *testing.T) {
	uc := &stubUseCase{saved: []domain.ArchivedStory{{ConversationHandle: "thread_1", StoryText: "A tale"}}}
	h := newTestHandler(t, uc)

	event := makeEvent(http.MethodGet, "/stories/thread_1", "")
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "thread_1", uc.storiesFor)

	event.PathParameters = map[string]string{"handle": "thread_2"}
	_, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "thread_2", uc.storiesFor)
}

func TestHandle_InvalidBody(t *testing.T) {
	uc := &stubUseCase{}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/threads/run", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, uc.sendCalls)

	out := parseBody[errorResponse](t, resp.Body)
	require.False(t, out.Success)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Code)
}

func TestHandle_UnknownRoute(t *testing.T) {
	uc := &stubUseCase{}
	h := newTestHandler(t, uc)

	for _, ev := range []events.APIGatewayProxyRequest{
		makeEvent(http.MethodGet, "/threads", ""),
		makeEvent(http.MethodPost, "/nope", "{}"),
	} {
		resp, err := h.Handle(context.Background(), ev)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	require.Zero(t, uc.createCalls)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_text", Message: "text is required"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput), msg: "text is required"},
		{name: "invalid message", err: &usecase.Error{Code: usecase.ErrorInvalidMessage, Reason: "moderation_flagged"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidMessage)},
		{name: "configuration", err: &usecase.Error{Code: usecase.ErrorConfiguration, Reason: "credentials_error", Err: errors.New("ssm: access denied")}, status: http.StatusInternalServerError, code: string(usecase.ErrorConfiguration), msg: "The story service is not configured correctly."},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "openai_create_run_error", Err: errors.New("dial tcp 10.0.0.1:443")}, status: http.StatusInternalServerError, code: string(usecase.ErrorUpstream)},
		{name: "run incomplete", err: &usecase.Error{Code: usecase.ErrorRunIncomplete, Reason: "run_failed", Message: "Run did not complete. Status: failed"}, status: http.StatusInternalServerError, code: string(usecase.ErrorRunIncomplete), msg: "Run did not complete. Status: failed"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{err: tc.err}
			h := newTestHandler(t, uc)

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/threads/run", `{"conversationHandle":"thread_1","text":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.False(t, out.Success)
			require.Equal(t, tc.code, out.Code)
			require.NotEmpty(t, out.Error)
			require.NotContains(t, out.Error, "dial tcp")
			require.NotContains(t, out.Error, "boom")
			if tc.msg != "" {
				require.Equal(t, tc.msg, out.Error)
			}
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubUseCase{handle: "thread_1"}
	h := newTestHandler(t, uc)

	event := makeEvent(http.MethodPost, "/threads", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
