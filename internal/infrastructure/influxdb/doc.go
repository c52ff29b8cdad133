// Package influxdb records decode metrics in InfluxDB through
// influxdb-client-go's non-blocking write API.
//
// Two measurements are written:
//
//	dlms_decode  per frame  tags source,type,success,error_kind,meter  fields frame_bytes,duration_us
//	dlms_batch   per batch  tags source,success                        fields items,failures,duration_us
//
// Connect returns ErrDisabled when the influxdb section is switched off;
// callers treat that as "no metrics" and keep a nil *Client, whose write
// methods are no-ops. Asynchronous write failures are counted and passed
// to the SetOnError callback.
package influxdb
