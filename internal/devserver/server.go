package devserver

import (
	"context"
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const maxBodySize = 1 << 20

// ProxyHandler is the Lambda entry point being served.
type ProxyHandler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Server exposes a Lambda proxy handler over plain HTTP so the API can be
// exercised locally.
type Server struct {
	Echo   *echo.Echo
	handle ProxyHandler
}

func NewServer(handle ProxyHandler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{Echo: e, handle: handle}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Echo.POST("/threads", s.proxy)
	s.Echo.POST("/threads/run", s.proxy)
	s.Echo.GET("/stories/:handle", s.proxy)

	// everything else still goes through the handler so 404s share its body
	s.Echo.Any("/*", s.proxy)
}

func (s *Server) Start(addr string) error {
	s.Echo.Logger.Infof("dev server listening at %s", addr)
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) proxy(c echo.Context) error {
	event, err := toProxyRequest(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	resp, err := s.handle(c.Request().Context(), event)
	if err != nil {
		return err
	}

	contentType := echo.MIMEApplicationJSON
	for k, v := range resp.Headers {
		if http.CanonicalHeaderKey(k) == echo.HeaderContentType {
			contentType = v
			continue
		}
		c.Response().Header().Set(k, v)
	}
	return c.Blob(resp.StatusCode, contentType, []byte(resp.Body))
}

func toProxyRequest(c echo.Context) (events.APIGatewayProxyRequest, error) {
	req := c.Request()
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}

	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}

	var params map[string]string
	if names := c.ParamNames(); len(names) > 0 {
		params = make(map[string]string, len(names))
		for _, name := range names {
			if name == "*" {
				continue
			}
			params[name] = c.Param(name)
		}
	}

	var query map[string]string
	if q := req.URL.Query(); len(q) > 0 {
		query = make(map[string]string, len(q))
		for k := range q {
			query[k] = q.Get(k)
		}
	}

	return events.APIGatewayProxyRequest{
		HTTPMethod:            req.Method,
		Path:                  req.URL.Path,
		Headers:               headers,
		PathParameters:        params,
		QueryStringParameters: query,
		Body:                  string(body),
	}, nil
}
