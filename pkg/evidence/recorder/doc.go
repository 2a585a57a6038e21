// Package recorder turns evaluations into decision records and writes them
// to a decision log without blocking the caller.
//
// RecordDecision builds the record synchronously: it assigns an id, hashes
// the full evaluation context and redacts the configured fields. The write
// itself happens on a worker goroutine. When the queue stays full for the
// write timeout the record is dropped and the caller gets ErrQueueFull; the
// evaluation result is never affected.
//
// Close drains the queue before returning, so call it before closing the
// storage:
//
//	rec := recorder.NewRecorder(store, recorder.Config{
//	    AsyncBuffer:  1000,
//	    WriteTimeout: 5 * time.Second,
//	    RedactFields: []string{"subject_dn"},
//	})
//	defer rec.Close()
package recorder
