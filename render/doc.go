// Package render turns crew output documents into HTML reports. A
// factory maps each crew's renderer key to a renderer that builds the
// report body as a DOM fragment; the template manager wraps the
// fragment in the page shell and writes it under the output directory.
//
// Renderers are lenient on input: the document comes from a model, so
// every key may be missing or mistyped. Missing values render as
// placeholders, and a renderer that cannot produce anything useful is
// replaced by the generic renderer rather than failing the request.
package render
