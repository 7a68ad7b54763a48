// Package aggregates defines the error codes shared by transactional writes
// and the layers that translate them (HTTP responses, job failures).
package aggregates
