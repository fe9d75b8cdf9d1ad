package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrMissingCredentials means the backend has no usable key or token.
var ErrMissingCredentials = errors.New("ai credentials missing")

// ErrNoJSON means the reply carried no JSON object.
var ErrNoJSON = errors.New("ai reply contains no json object")

// ErrEmptyReply means the backend answered with no content.
var ErrEmptyReply = errors.New("ai reply is empty")
