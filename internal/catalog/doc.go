// Package catalog resolves app names and event names to the credentials and
// tokens a job needs.
//
// The catalog is a JSON document keyed by app name:
//
//	{"Shop": {"app_token": "abc", "use_get_request": false, "events": {"install": "t1"}}}
//
// Lookups reload the file when its modification time changes; long-running
// processes can also call Watch to pick edits up as soon as they land.
package catalog
