// Package remote implements the spantree backend as an HTTP client/server
// pair over the sqlite store. The owning process runs the server next to the
// database file; every process (the owner included) mutates spans through
// the same five HTTP operations, so there is exactly one writer path.
package remote

// spanPayload is the representation of a span on the wire. Data travels as
// raw JSON text so the server can hand it straight to json_patch without
// decoding. ParentID is explicitly null for roots; id lists travel as bare
// JSON arrays of id strings.
type spanPayload struct {
	Name     string  `json:"name"`
	DataJSON string  `json:"data_json"`
	ParentID *string `json:"parent_id"`
}

// patchPayload carries a merge patch for an existing span's data.
type patchPayload struct {
	DataJSON string `json:"data_json"`
}

type errorPayload struct {
	Error string `json:"error"`
}
