package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type LoggerTestSuite struct {
	suite.Suite
	originalLogger *zap.Logger
	observedLogs   *observer.ObservedLogs
}

func (suite *LoggerTestSuite) SetupSuite() {
	suite.originalLogger = zap.L()
}

func (suite *LoggerTestSuite) TearDownSuite() {
	zap.ReplaceGlobals(suite.originalLogger)
}

func (suite *LoggerTestSuite) SetupTest() {
	var core zapcore.Core
	core, suite.observedLogs = observer.New(zap.DebugLevel)
	zap.ReplaceGlobals(zap.New(core))
}

func (suite *LoggerTestSuite) TestGetLogLevelFromString() {
	testCases := []struct {
		name     string
		input    string
		expected zapcore.Level
	}{
		{"debug lowercase", "debug", zapcore.DebugLevel},
		{"info mixed case", "Info", zapcore.InfoLevel},
		{"warn uppercase", "WARN", zapcore.WarnLevel},
		{"error short", "err", zapcore.ErrorLevel},
		{"warning full", "warning", zapcore.WarnLevel},
		{"fatal", "fatal", zapcore.FatalLevel},
		{"with whitespace", "  debug\t", zapcore.DebugLevel},
		{"empty string", "", zapcore.InfoLevel},
		{"invalid level", "verbose", zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			assert.Equal(suite.T(), tc.expected, getLogLevelFromString(tc.input))
		})
	}
}

func (suite *LoggerTestSuite) TestInit() {
	testCases := []struct {
		name   string
		config *Config
	}{
		{"json production", &Config{Level: "info", Env: "production", ServiceName: "mmm-dashboard"}},
		{"console development", &Config{Level: "debug", Env: "development", ServiceName: "mmm-dashboard", Encoding: "console"}},
		{"empty config", &Config{}},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			require.NoError(suite.T(), Init(tc.config))
			require.NotPanics(suite.T(), func() {
				LogInfo("after init")
			})
		})
	}
}

func (suite *LoggerTestSuite) TestInitRejectsUnknownEncoding() {
	err := Init(&Config{Level: "info", Encoding: "xml"})
	assert.Error(suite.T(), err)
}

func (suite *LoggerTestSuite) TestLoggingFunctions() {
	testCases := []struct {
		name    string
		logFunc func()
		level   zapcore.Level
		message string
	}{
		{"LogDebug", func() { LogDebug("debug message") }, zapcore.DebugLevel, "debug message"},
		{"LogInfo", func() { LogInfo("info message") }, zapcore.InfoLevel, "info message"},
		{"LogWarn", func() { LogWarn("warn message") }, zapcore.WarnLevel, "warn message"},
		{"LogError", func() { LogError("error message") }, zapcore.ErrorLevel, "error message"},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.observedLogs.TakeAll()
			tc.logFunc()

			logs := suite.observedLogs.All()
			require.Len(suite.T(), logs, 1)
			assert.Equal(suite.T(), tc.level, logs[0].Level)
			assert.Equal(suite.T(), tc.message, logs[0].Message)
		})
	}
}

func (suite *LoggerTestSuite) TestLoggingWithFields() {
	LogInfo("proxied request",
		zap.String("method", "POST"),
		zap.Int("status", 201),
	)

	logs := suite.observedLogs.All()
	require.Len(suite.T(), logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(suite.T(), "POST", fields["method"])
	assert.Equal(suite.T(), int64(201), fields["status"])
}

func (suite *LoggerTestSuite) TestSync() {
	require.NotPanics(suite.T(), Sync)
}

func TestLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...(truncated)", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
}

func BenchmarkLogInfo(b *testing.B) {
	_ = Init(&Config{Level: "info", Env: "benchmark", ServiceName: "bench"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		LogInfo("benchmark message")
	}
}
