package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"qrgate/internal/config"
)

const SourceFileTail = "file_tail"

// StartFileTail follows files written by an external QR decoder, one payload
// per line. A blank line means the symbol left the field of view.
func StartFileTail(ctx context.Context, cfg config.FileTailConfig, gate *Gate, logger *slog.Logger) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range cfg.Files {
		path := path
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", cfg.StartAtEnd)
		}
		go tailFile(ctx, path, cfg.StartAtEnd, gate, logger)
	}
}

func tailFile(ctx context.Context, path string, startAtEnd bool, gate *Gate, logger *slog.Logger) {
	var file *os.File
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("tail open failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
			if startAtEnd {
				if pos, err := file.Seek(0, io.SeekEnd); err == nil {
					offset = pos
				}
			}
		}

		reader := bufio.NewReader(file)
		var pending string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					pending += line
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						_ = file.Close()
						return
					}
					info, statErr := os.Stat(path)
					if statErr == nil && info.Size() < offset {
						_ = file.Close()
						file = nil
						startAtEnd = false
						break
					}
					continue
				}
				if logger != nil {
					logger.Warn("tail read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			line = pending + line
			pending = ""
			offset += int64(len(line))
			gate.Submit(ctx, SourceFileTail, line)
		}
	}
}
