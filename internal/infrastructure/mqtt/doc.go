// Package mqtt wraps the paho client for frame ingest and result
// publishing.
//
// Topic layout:
//
//	dlms/raw/{meter}      hex frames from meters or head-end systems
//	dlms/decoded/{meter}  decoded message JSON
//	dlms/errors/{meter}   {"message","detail"} for frames that failed
//	dlms/system/status    retained online/offline document, also the Last Will
//
// Connect waits up to connectTimeout for the first connection; afterwards paho
// reconnects on its own and the client restores subscriptions in its
// OnConnect handler. Handlers passed to Subscribe run on paho's goroutine
// and have panics recovered.
package mqtt
