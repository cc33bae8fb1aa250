// Package validator checks every file assignment of a collector in one pass.
//
// Validation never stops at the first problem: missing files are sorted into
// application, parameter-set and other lists, and application images whose
// contents do not name the target device are reported as compatibility
// warnings.
package validator
