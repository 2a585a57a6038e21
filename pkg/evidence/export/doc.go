// Package export writes decision records as JSON or CSV.
//
// Both exporters accept either a slice of records or the channel returned
// by Storage.QueryStream. Streaming keeps memory flat for large exports:
//
//	exp, err := export.New(export.FormatCSV)
//	if err != nil {
//	    return err
//	}
//	recordsCh, errCh, err := store.QueryStream(ctx, q)
//	if err != nil {
//	    return err
//	}
//	if err := exp.ExportStream(ctx, recordsCh, w); err != nil {
//	    return err
//	}
//	return <-errCh
package export
