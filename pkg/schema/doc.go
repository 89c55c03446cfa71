// Package schema declares table shapes for the Tabula store and validates
// rows against them. A Schema maps table names to column descriptions; each
// column carries a cell type tag, a required flag, and an optional default.
// The validator is generic over the tagged cell types so storage and
// validation stay separate concerns.
//
// Structured values (transcripts, language lists, template sections, chat
// message parts) cross the store boundary as serialized text cells; the
// codecs in this package are the only place that understands their shape.
package schema
