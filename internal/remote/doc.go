// Package remote is the client for the spreadsheet-backed requisition API.
//
// The API is a single endpoint. Reads are GET requests selected by an
// "action" query parameter; writes are POST requests whose text/plain body is
// a JSON object carrying the action name (saving a requisition sends the bare
// record). Replies are either an envelope
//
//	{"status": "success" | "error", "message": "...", ...payload}
//
// or, for the list endpoints, a bare JSON array.
//
// Every failure is an *Error classified by Kind. Nothing is retried here;
// callers decide whether a failed call matters.
package remote
