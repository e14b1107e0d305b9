// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"os"
	"strings"

	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogLevel = "info"

// DefaultLogLevel returns the level named by the LOG_LEVEL environment
// variable, or info.
func DefaultLogLevel() string {
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		return l
	}
	return defaultLogLevel
}

// StringToZapLogLevel translates log level string to log level.
func StringToZapLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "fatal":
		return zapcore.FatalLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	}
	return zapcore.InfoLevel
}

// InitLogger builds a zap logger from cfg and installs it as the global
// logger used by github.com/pingcap/log.
func InitLogger(cfg *log.Config) error {
	if len(cfg.Level) == 0 {
		cfg.Level = DefaultLogLevel()
	}
	lg, props, err := log.InitLogger(cfg, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return err
	}
	log.ReplaceGlobals(lg, props)
	return nil
}

// LogPanic logs the panic reason and stack, then exit the process.
// Commonly used with a `defer`.
func LogPanic() {
	if e := recover(); e != nil {
		log.Fatal("panic", zap.Reflect("recover", e))
	}
}

// JournalConfig describes a rotating JSON-lines file.
type JournalConfig struct {
	Filename   string `toml:"filename" json:"filename"`
	MaxSize    int    `toml:"max-size" json:"max-size"`
	MaxBackups int    `toml:"max-backups" json:"max-backups"`
	MaxDays    int    `toml:"max-days" json:"max-days"`
}

// NewJournal returns a logger that appends JSON lines to a size-rotated
// file. The returned close function flushes and closes the file.
func NewJournal(cfg *JournalConfig) (*zap.Logger, func() error) {
	out := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(out), zapcore.InfoLevel)
	lg := zap.New(core)
	return lg, func() error {
		_ = lg.Sync()
		return out.Close()
	}
}
