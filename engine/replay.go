package engine

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/paddymahoney/parity/wal"
)

// ErrReplayFailed wraps WAL read failures during startup replay
var ErrReplayFailed = errors.New("WAL replay failed")

// replayWAL repopulates the vote store with every vote logged for the
// starting height. Step records are not replayed: the clock restarts from a
// fresh Propose deadline, and votes alone are enough to rebuild seals. A
// decode error mid-log is treated as a torn tail write and ends the replay
// rather than failing startup.
func (e *Engine) replayWAL(height Height) error {
	if e.wal == nil {
		return nil
	}

	reader, err := e.wal.OpenReader()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReplayFailed, err)
	}
	defer reader.Close()

	replayed := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			e.logger.Warn("WAL replay stopped at corrupted record", zap.Error(err))
			break
		}

		if rec.Type != wal.RecordVote || rec.Height != height {
			continue
		}

		msg, voter, err := wal.DecodeVote(rec.Data)
		if err != nil {
			e.logger.Warn("skipping undecodable vote record", zap.Error(err))
			continue
		}
		e.votes.Vote(msg, voter)
		replayed++
	}

	if replayed > 0 {
		e.logger.Info("replayed votes from WAL",
			zap.Int64("height", height),
			zap.Int("votes", replayed))
	}
	return nil
}
