package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"store-management/internal/handler"
	"store-management/internal/telemetry"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Serverはechoとhttp.Serverをまとめる
type Server struct {
	echo   *echo.Echo
	http   *http.Server
	logger *slog.Logger
}

// DI
func New(
	addr string,
	productH *handler.ProductHandler,
	authH *handler.AuthHandler,
	authn echo.MiddlewareFunc,
	tel *telemetry.Telemetry,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(echomw.Recover())
	e.Use(requestLogger(tel.Logger))

	RegisterRoutes(e, productH, authH, authn, tel.MetricsHandler())

	//otelhttpで全体を包む（trace + http.server.* メトリクス）
	h := otelhttp.NewHandler(e, "http-server",
		otelhttp.WithTracerProvider(tel.TracerProvider),
		otelhttp.WithMeterProvider(tel.MeterProvider),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
	)

	return &Server{
		echo: e,
		http: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: tel.Logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Startはブロックする。Shutdownで止めた場合はnilを返す
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", slog.String("address", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// リクエストごとに1行のログ
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			} else if cause, ok := c.Get(handler.CtxErrorCauseKey).(error); ok {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", cause.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
}
