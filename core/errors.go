package core

import "errors"

var (
	ErrSchemaLoad        = errors.New("schema load failed")
	ErrSchemaValidation  = errors.New("schema validation failed")
	ErrDecode            = errors.New("malformed message")
	ErrSignatureRecovery = errors.New("signature recovery failed")
	ErrQuotaQuery        = errors.New("quota query failed")
	ErrRejected          = errors.New("authentication rejected")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrConnectionClosed  = errors.New("connection closed")
)
