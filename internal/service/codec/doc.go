// Package codec reads and writes deployment-configuration documents.
//
// A document records, per node, the ordered file sections with each entry's
// path, skip flag and default/custom origin. It is independent of the final
// package and can be re-imported into a freshly collected model. YAML is the
// default format; CBOR is available for compact machine exchange.
package codec
