package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base *zap.Logger
	log  *zap.SugaredLogger
)

// Init 로거 초기화
// env가 "production"이면 JSON 인코더, 아니면 개발용 콘솔 인코더를 사용한다.
func Init(level string, env ...string) {
	var zapConfig zap.Config

	if len(env) > 0 && env[0] == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	built, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}

	mu.Lock()
	base = built
	log = built.Sugar()
	mu.Unlock()
}

// ParseLevel 문자열 로그 레벨 변환 (알 수 없는 값은 info)
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Named 컴포넌트별 구조화 로거 반환
// Init 이전에 호출되면 아무것도 출력하지 않는 로거를 돌려준다.
func Named(name string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	if base == nil {
		return zap.NewNop()
	}
	return base.Named(name)
}

// Sync 로거 플러시
func Sync() {
	mu.RLock()
	defer mu.RUnlock()

	if log != nil {
		_ = log.Sync()
	}
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()

	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}

// Debug 디버그 로그
func Debug(msg string, keysAndValues ...interface{}) {
	sugar().Debugw(msg, keysAndValues...)
}

// Info 정보 로그
func Info(msg string, keysAndValues ...interface{}) {
	sugar().Infow(msg, keysAndValues...)
}

// Warn 경고 로그
func Warn(msg string, keysAndValues ...interface{}) {
	sugar().Warnw(msg, keysAndValues...)
}

// Error 에러 로그
func Error(msg string, keysAndValues ...interface{}) {
	sugar().Errorw(msg, keysAndValues...)
}

// Fatal 치명적 에러 로그 (프로그램 종료)
func Fatal(msg string, keysAndValues ...interface{}) {
	sugar().Fatalw(msg, keysAndValues...)
}
