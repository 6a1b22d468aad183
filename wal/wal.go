package wal

import (
	"errors"
	"io"

	"github.com/paddymahoney/parity/types"
)

// Errors
var (
	ErrWALClosed    = errors.New("WAL is closed")
	ErrWALCorrupted = errors.New("WAL is corrupted")
	ErrWALNotFound  = errors.New("WAL file not found")
)

// RecordType identifies the type of WAL record
type RecordType uint8

const (
	// RecordUnknown is an unrecognized record, skipped on replay
	RecordUnknown RecordType = iota
	// RecordVote is a consensus message with its recovered voter
	RecordVote
	// RecordStep marks a step transition of the state machine
	RecordStep
	// RecordEndHeight marks that consensus moved past a height
	RecordEndHeight
)

// Record is one framed WAL entry
type Record struct {
	Type   RecordType   `cbor:"1,keyasint"`
	Height types.Height `cbor:"2,keyasint"`
	Round  types.Round  `cbor:"3,keyasint"`
	Data   []byte       `cbor:"4,keyasint,omitempty"`
}

// Marshal serializes the record
func (r *Record) Marshal() ([]byte, error) {
	return types.MarshalCanonical(r)
}

// Unmarshal deserializes the record
func (r *Record) Unmarshal(data []byte) error {
	return types.UnmarshalCanonical(data, r)
}

// WAL is an append-only, crash-safe log of consensus activity
type WAL interface {
	// Write appends a record (buffered)
	Write(rec *Record) error

	// WriteSync appends a record and syncs it to disk
	WriteSync(rec *Record) error

	// FlushAndSync flushes and syncs all pending writes
	FlushAndSync() error

	// OpenReader returns a Reader over the whole log, oldest record first
	OpenReader() (Reader, error)

	// Start opens the WAL for writing
	Start() error

	// Stop flushes and closes the WAL
	Stop() error
}

// Reader reads records back from a WAL
type Reader interface {
	// Read returns the next record, or io.EOF at the end of the log
	Read() (*Record, error)

	// Close closes the reader
	Close() error
}

// voteData is the payload of a RecordVote entry
type voteData struct {
	Message types.ConsensusMessage `cbor:"1,keyasint"`
	Voter   types.Address          `cbor:"2,keyasint"`
}

// stepData is the payload of a RecordStep entry
type stepData struct {
	Step types.Step `cbor:"1,keyasint"`
}

// NewVoteRecord creates a WAL record for a recorded vote
func NewVoteRecord(msg types.ConsensusMessage, voter types.Address) (*Record, error) {
	data, err := types.MarshalCanonical(&voteData{Message: msg, Voter: voter})
	if err != nil {
		return nil, err
	}
	return &Record{
		Type:   RecordVote,
		Height: msg.Height,
		Round:  msg.Round,
		Data:   data,
	}, nil
}

// DecodeVote decodes a vote record payload
func DecodeVote(data []byte) (types.ConsensusMessage, types.Address, error) {
	var vd voteData
	if err := types.UnmarshalCanonical(data, &vd); err != nil {
		return types.ConsensusMessage{}, types.Address{}, err
	}
	return vd.Message, vd.Voter, nil
}

// NewStepRecord creates a WAL record for a step transition
func NewStepRecord(height types.Height, round types.Round, step types.Step) (*Record, error) {
	data, err := types.MarshalCanonical(&stepData{Step: step})
	if err != nil {
		return nil, err
	}
	return &Record{
		Type:   RecordStep,
		Height: height,
		Round:  round,
		Data:   data,
	}, nil
}

// DecodeStep decodes a step record payload
func DecodeStep(data []byte) (types.Step, error) {
	var sd stepData
	if err := types.UnmarshalCanonical(data, &sd); err != nil {
		return 0, err
	}
	return sd.Step, nil
}

// NewEndHeightRecord creates a WAL record marking the end of a height
func NewEndHeightRecord(height types.Height) *Record {
	return &Record{
		Type:   RecordEndHeight,
		Height: height,
	}
}

// NopWAL is a no-op WAL implementation for testing
type NopWAL struct{}

func (w *NopWAL) Write(rec *Record) error     { return nil }
func (w *NopWAL) WriteSync(rec *Record) error { return nil }
func (w *NopWAL) FlushAndSync() error         { return nil }
func (w *NopWAL) OpenReader() (Reader, error) { return &NopReader{}, nil }
func (w *NopWAL) Start() error                { return nil }
func (w *NopWAL) Stop() error                 { return nil }

// Ensure NopWAL implements WAL
var _ WAL = (*NopWAL)(nil)

// NopReader is a no-op reader
type NopReader struct{}

func (r *NopReader) Read() (*Record, error) { return nil, io.EOF }
func (r *NopReader) Close() error           { return nil }

var _ Reader = (*NopReader)(nil)
