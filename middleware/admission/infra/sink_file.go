package infra

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSinkOptions configura o arquivo rotativo dos registros de requisição.
type FileSinkOptions struct {
	Path       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// FileSink grava registros em JSON (uma linha por requisição) num arquivo com
// rotação por tamanho e retenção por idade.
type FileSink struct {
	*SlogSink
	out *lumberjack.Logger
}

func NewFileSink(opts FileSinkOptions) *FileSink {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 10
	}

	out := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxAge:     opts.MaxAgeDays,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))

	return &FileSink{SlogSink: NewSlogSink(logger), out: out}
}

func (s *FileSink) Close() error { return s.out.Close() }
