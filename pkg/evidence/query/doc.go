// Package query validates decision log queries and fills in their defaults.
//
// Storage backends trust validated queries: sort fields are checked against
// a fixed list before they reach SQL.
//
//	q := &evidence.Query{Requester: "legacy-bot", SortOrder: "asc"}
//	if err := query.Validate(q); err != nil {
//	    return err
//	}
//	query.ApplyDefaults(q)
//	records, err := store.Query(ctx, q)
package query
