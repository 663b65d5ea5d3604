package llm

import (
	"errors"
	"fmt"
)

// MissingCredentialError means no API key was supplied and the environment
// fallback was unset. Fatal at the call site; there is nothing to retry.
type MissingCredentialError struct {
	API    API
	EnvVar string
}

func (e *MissingCredentialError) Error() string {
	if e.EnvVar != "" {
		return fmt.Sprintf("no API key for %s: set %s or pass one in options", e.API, e.EnvVar)
	}
	return fmt.Sprintf("no API key for %s", e.API)
}

// TranslationError means a cross-provider message translation is not
// implemented for a source→target pair. Raised instead of producing silently
// wrong output.
type TranslationError struct {
	From   API
	To     API
	Detail string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("cannot translate %s message for %s: %s", e.From, e.To, e.Detail)
}

// ProtocolError means a provider stream violated its documented contract:
// an unknown stop reason, malformed event ordering, or a missing field the
// protocol requires. It indicates a bug or a provider change, not bad input.
type ProtocolError struct {
	API    API
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s protocol error: %s", e.API, e.Detail)
}

// ToolSchemaError means a tool's parameter schema cannot be represented for
// the target provider (for example a $ref inside a Google tool schema).
type ToolSchemaError struct {
	Tool   string
	Detail string
}

func (e *ToolSchemaError) Error() string {
	return fmt.Sprintf("tool %q schema: %s", e.Tool, e.Detail)
}

// IsMissingCredential reports whether err is a MissingCredentialError.
func IsMissingCredential(err error) bool {
	var mc *MissingCredentialError
	return errors.As(err, &mc)
}
