package config

import (
	"io"
	"log"
	"os"

	"reelfeed/internal/logx"
)

// SetupLogging routes the stdlib logger through the logx filter so noisy
// repeat lines (scroll flicker, per-chunk warm reads) collapse instead of
// flooding the output.
func SetupLogging() {
	filter := logx.New(logSink(), LogDedupWindow(), LogAllowRegex(), LogDenyRegex())

	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(filter)
	log.Printf("[boot] logging ready (dedup=%s allow=%q deny=%q file=%q)",
		LogDedupWindow(), LogAllowRegex(), LogDenyRegex(), LogFilePath())
}

func logSink() io.Writer {
	p := LogFilePath()
	if p == "" {
		return os.Stdout
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("WARN opening LOG_FILE=%q: %v", p, err)
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, f)
}
