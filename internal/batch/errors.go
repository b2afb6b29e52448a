package batch

import "fmt"

// ChunkTransactionError reports a chunk whose transaction did not commit.
// Fatal errors stop the whole Process call.
type ChunkTransactionError struct {
	Label string
	Index int
	Size  int
	Fatal bool
	Err   error
}

func (e *ChunkTransactionError) Error() string {
	return fmt.Sprintf("%s chunk %d (%d records): %v", e.Label, e.Index, e.Size, e.Err)
}

func (e *ChunkTransactionError) Unwrap() error {
	return e.Err
}

// RecordWriteError reports a record that failed in its own transaction.
type RecordWriteError struct {
	Label    string
	RecordID string
	Err      error
}

func (e *RecordWriteError) Error() string {
	return fmt.Sprintf("%s record %s: %v", e.Label, e.RecordID, e.Err)
}

func (e *RecordWriteError) Unwrap() error {
	return e.Err
}
