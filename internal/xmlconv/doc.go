// Package xmlconv repairs decoder XML and converts it to display JSON.
//
// Normalize fixes the duplicated wrapper elements some decoders emit for
// ACTION PDUs. Converter turns the repaired XML into pretty-printed JSON,
// trying a primary engine, then a fallback engine, and finally producing an
// error envelope so that callers always receive a JSON document.
package xmlconv
