// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go - NO GOLEM DEPENDENCY
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log      *zap.SugaredLogger
	logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() {
	initLogger()
}

func initLogger() {
	level, err := parseLogLevel(getLogLevel())
	if err != nil {
		level = zap.InfoLevel
	}
	logLevel.SetLevel(level)

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level = logLevel

	logger, _ := config.Build()
	log = logger.Sugar().Named("hwsigner")
}

func getLogLevel() string {
	level := os.Getenv("HWSIGNER_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return strings.ToLower(level)
}

func parseLogLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLogLevel changes the level of the package logger at runtime.
func SetLogLevel(level string) error {
	l, err := parseLogLevel(level)
	if err != nil {
		return err
	}
	logLevel.SetLevel(l)
	return nil
}

// Logger returns the package logger.
func Logger() *zap.SugaredLogger {
	return log
}
