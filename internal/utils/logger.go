// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"micmgmt-service/internal/config"
	"micmgmt-service/pkg/micsdk"
)

const defaultLogFile = "./logs/micmgmt.log"

// NewLogger builds the process logger. Output is "stdout", "stderr" or a file
// path rotated by lumberjack.
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	sink, err := openSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output: %w", err)
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeCaller = zapcore.ShortCallerEncoder

	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
		return zapcore.NewConsoleEncoder(ec)
	}
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	ec.EncodeTime = zapcore.RFC3339TimeEncoder
	return zapcore.NewJSONEncoder(ec)
}

func openSink(cfg *config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	path := cfg.Output
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

// CardLogger tags every entry with the card it concerns.
type CardLogger struct {
	*zap.Logger
}

// NewCardLogger creates a logger for card index.
func NewCardLogger(base *zap.Logger, index int) *CardLogger {
	return &CardLogger{Logger: base.With(
		zap.String("device", fmt.Sprintf("mic%d", index)),
		zap.Int("device_index", index),
	)}
}

// LogControl logs a state changing request sent over the control channel.
func (cl *CardLogger) LogControl(request string, took time.Duration, err error) {
	if err != nil {
		cl.Error("Control request failed",
			zap.String("request", request),
			zap.Duration("duration", took),
			zap.Stringer("result_code", micsdk.CodeOf(err)),
			zap.Error(err),
		)
		return
	}
	cl.Info("Control request completed", zap.String("request", request), zap.Duration("duration", took))
}

// LogOpen logs the outcome of opening the channels.
func (cl *CardLogger) LogOpen(attempts int, err error) {
	if err != nil {
		cl.Error("Failed to open device", zap.Int("attempts", attempts), zap.Error(err))
		return
	}
	cl.Info("Device opened", zap.Int("attempts", attempts))
}

// LogClose logs the outcome of closing the control channel.
func (cl *CardLogger) LogClose(err error) {
	if err != nil {
		cl.Warn("Device close reported an error", zap.Error(err))
		return
	}
	cl.Info("Device closed")
}

// OperationLogger follows one audited control operation.
type OperationLogger struct {
	logger  *zap.Logger
	started time.Time
}

// NewOperationLogger creates a logger for the operation id of type opType
// and logs its start.
func NewOperationLogger(base *zap.Logger, opType, id string, fields ...zap.Field) *OperationLogger {
	ol := &OperationLogger{
		logger: base.With(
			zap.String("operation_type", opType),
			zap.String("operation_id", id),
		),
		started: time.Now(),
	}
	ol.logger.Info("Operation started", fields...)
	return ol
}

// Finish logs the outcome. A nil err is a success.
func (ol *OperationLogger) Finish(err error) {
	took := time.Since(ol.started)
	if err != nil {
		ol.logger.Error("Operation failed",
			zap.Duration("duration", took),
			zap.Stringer("result_code", micsdk.CodeOf(err)),
			zap.Error(err),
		)
		return
	}
	ol.logger.Info("Operation completed", zap.Duration("duration", took))
}

// ServiceLogger tags entries with the emitting component.
type ServiceLogger struct {
	*zap.Logger
}

// NewServiceLogger creates a logger for the named component.
func NewServiceLogger(base *zap.Logger, component string) *ServiceLogger {
	return &ServiceLogger{Logger: base.With(zap.String("component", component))}
}

func (sl *ServiceLogger) LogServiceStart(version string, fields ...zap.Field) {
	sl.Info("Service starting", append([]zap.Field{zap.String("version", version)}, fields...)...)
}

func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping", zap.String("reason", reason))
}

// LogAPIRequest writes the access log line. 4xx log at warn, 5xx at error.
func (sl *ServiceLogger) LogAPIRequest(method, path, clientIP, requestID string, statusCode int, duration time.Duration) {
	level := zapcore.InfoLevel
	switch {
	case statusCode >= 500:
		level = zapcore.ErrorLevel
	case statusCode >= 400:
		level = zapcore.WarnLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", clientIP),
			zap.String("request_id", requestID),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// LogStatement logs a database statement at debug level, failures at error.
func (sl *ServiceLogger) LogStatement(statement string, took time.Duration, err error) {
	if err != nil {
		sl.Error("Database statement failed", zap.String("statement", statement), zap.Duration("duration", took), zap.Error(err))
		return
	}
	sl.Debug("Database statement executed", zap.String("statement", statement), zap.Duration("duration", took))
}

// AuditLogger writes the control audit trail.
type AuditLogger struct {
	logger *zap.Logger
}

func NewAuditLogger(base *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: base.With(zap.String("component", "audit"))}
}

// LogControlOperation records a state changing request sent to a card.
func (al *AuditLogger) LogControlOperation(deviceName, operationType, operationID string, params interface{}, success bool) {
	al.logger.Info("Control operation",
		zap.String("device", deviceName),
		zap.String("operation_type", operationType),
		zap.String("operation_id", operationID),
		zap.Any("params", params),
		zap.Bool("success", success),
	)
}

// SecurityLogger records requests refused by policy.
type SecurityLogger struct {
	logger *zap.Logger
}

func NewSecurityLogger(base *zap.Logger) *SecurityLogger {
	return &SecurityLogger{logger: base.With(zap.String("component", "security"))}
}

func (sl *SecurityLogger) LogDeniedOperation(deviceName, operationType, reason string) {
	sl.logger.Warn("Privileged operation denied",
		zap.String("device", deviceName),
		zap.String("operation_type", operationType),
		zap.String("reason", reason),
	)
}

// CloseLogger flushes buffered entries.
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
