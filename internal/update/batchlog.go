package update

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// redirectBatchLog retargets the global zerolog logger at path for the
// duration of a batch sub-mode run, returning a restore func that puts the
// previous logger back and closes the file. A resumed run reopens the same
// path in append mode, so earlier shards' log lines survive the restart.
func redirectBatchLog(path string) (restore func(), err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("update: open batch log: %w", err)
	}
	previous := log.Logger
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() {
		log.Logger = previous
		f.Close()
	}, nil
}
