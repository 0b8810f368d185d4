package daemon_test

import (
	"log/slog"

	"capnote/internal/logging"
)

func testLogger() *slog.Logger {
	return logging.NewNop()
}
