package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var logFile *os.File

// SetupLogger 日志输出到文件，没有指定文件时输出到stderr。
// stdio模式下stdout用于协议消息，日志不能写到stdout。
func SetupLogger(path string, level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if path == "" {
		logrus.SetOutput(os.Stderr)
		return nil
	}
	logFile, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(logFile)
	return nil
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
