package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const instrumentationName = "github.com/hyperledger-labs/interop-relayer"

type RelayLogger struct {
	slog.Logger
}

var relayLogger *RelayLogger

func InitLogger(logLevel, format, output string, enableTelemetry bool) error {
	// output
	var writer io.Writer
	switch output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		return errors.New("invalid log output")
	}

	return InitLoggerWithWriter(logLevel, format, writer, enableTelemetry)
}

func InitLoggerWithWriter(logLevel, format string, writer io.Writer, enableTelemetry bool) error {
	// level
	var slogLevel slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		slogLevel = slog.LevelDebug
	case "INFO":
		slogLevel = slog.LevelInfo
	case "WARN":
		slogLevel = slog.LevelWarn
	case "ERROR":
		slogLevel = slog.LevelError
	default:
		return errors.New("invalid log level")
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: true,
	}

	var handler slog.Handler
	// format
	switch format {
	case "text":
		handler = slog.NewTextHandler(writer, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(writer, handlerOpts)
	default:
		return errors.New("invalid log format")
	}

	if enableTelemetry {
		handler = slogmulti.Fanout(handler, otelslog.NewHandler(instrumentationName))
	}

	// set global logger
	relayLogger = &RelayLogger{
		*slog.New(handler),
	}
	return nil
}

// GetLogger returns the global logger. Before initialization it falls back to slog's default logger.
func GetLogger() *RelayLogger {
	if relayLogger == nil {
		return &RelayLogger{*slog.Default()}
	}
	return relayLogger
}

func (rl *RelayLogger) log(level slog.Level, skip int, msg string, args ...any) {
	rl.logContext(context.Background(), level, skip+1, msg, args...)
}

func (rl *RelayLogger) logContext(ctx context.Context, level slog.Level, skip int, msg string, args ...any) {
	if !rl.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip [runtime.Callers, logContext]
	runtime.Callers(2+skip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = rl.Handler().Handle(ctx, r)
}

func (rl *RelayLogger) Error(msg string, err error, otherArgs ...any) {
	rl.logContext(context.Background(), slog.LevelError, 1, msg, append([]any{"error", err}, otherArgs...)...)
}

func (rl *RelayLogger) ErrorContext(ctx context.Context, msg string, err error, otherArgs ...any) {
	rl.logContext(ctx, slog.LevelError, 1, msg, append([]any{"error", err}, otherArgs...)...)
}

func (rl *RelayLogger) Fatal(msg string, err error, otherArgs ...any) {
	rl.logContext(context.Background(), slog.LevelError, 1, msg, append([]any{"error", err}, otherArgs...)...)
	os.Exit(1)
}

func (rl *RelayLogger) ErrorWithStack(msg string, err error) {
	cError := errors.NewWithDepth(1, err.Error())
	rl.logContext(context.Background(), slog.LevelError, 1, msg, "error", cError, "stack", fmt.Sprintf("%+v", cError))
}

// TimeTrackContext logs the time elapsed since start. Use it with defer.
func (rl *RelayLogger) TimeTrackContext(ctx context.Context, start time.Time, name string, otherArgs ...any) {
	elapsed := time.Since(start)
	rl.logContext(ctx, slog.LevelInfo, 1, "time track", append([]any{"name", name, "elapsed", elapsed.Nanoseconds()}, otherArgs...)...)
}

func (rl *RelayLogger) WithChain(
	srcChainID string,
	dstChainID string,
) *RelayLogger {
	return &RelayLogger{
		*rl.With(
			"source chain id", srcChainID,
			"destination chain id", dstChainID,
		),
	}
}

func (rl *RelayLogger) WithChainID(
	chainID string,
) *RelayLogger {
	return &RelayLogger{
		*rl.With(
			"chain id", chainID,
		),
	}
}

func (rl *RelayLogger) WithBundle(
	bundleHash string,
) *RelayLogger {
	return &RelayLogger{
		*rl.With(
			"bundle hash", bundleHash,
		),
	}
}

func (rl *RelayLogger) WithModule(
	moduleName string,
) *RelayLogger {
	return &RelayLogger{
		*rl.With(
			"module", moduleName,
		),
	}
}
