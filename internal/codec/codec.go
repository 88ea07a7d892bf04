// Package codec parses and serializes agent documents: a YAML front matter
// header between "---" delimiter lines, followed by the free-text body.
// It is pure and performs no I/O.
package codec

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/avila-roffe/agents-catalog/internal/models"
	"gopkg.in/yaml.v3"
)

// Kind identifies why a document failed to decode.
type Kind string

const (
	// KindMissingHeader means no delimited front matter block was found.
	KindMissingHeader Kind = "MISSING_HEADER"
	// KindMalformedHeader means the block is present but is not parseable
	// as a key/value structure.
	KindMalformedHeader Kind = "MALFORMED_HEADER"
	// KindMissingRequiredField means the header parses but lacks title,
	// description, or version.
	KindMissingRequiredField Kind = "MISSING_REQUIRED_FIELD"
	// KindInvalidVersion means the version field is present but not
	// MAJOR.MINOR.PATCH shaped.
	KindInvalidVersion Kind = "INVALID_VERSION"
)

// DecodeError reports a document that could not be decoded.
type DecodeError struct {
	Kind  Kind
	cause error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", strings.ToLower(string(e.Kind)), e.cause)
	}
	return strings.ToLower(string(e.Kind))
}

// Unwrap returns the underlying cause if any.
func (e *DecodeError) Unwrap() error {
	return e.cause
}

// ToAPIError converts the decode failure into the catalog error taxonomy,
// naming the offending path and the decode kind.
func (e *DecodeError) ToAPIError(path string) *models.APIError {
	return models.NewAPIError(http.StatusUnprocessableEntity, models.ErrDecodeFailed,
		fmt.Sprintf("document %s failed to decode: %s", path, e.Error())).
		WithDetail("path", path).
		WithDetail("kind", string(e.Kind))
}

const delimiter = "---"

// Decode splits raw document text into its header and body.
// The returned error, when non-nil, is always a *DecodeError.
func Decode(raw string) (models.Header, string, error) {
	var h models.Header
	if !strings.HasPrefix(raw, delimiter+"\n") {
		return h, "", &DecodeError{Kind: KindMissingHeader}
	}
	rest := raw[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	if end < 0 {
		// Opening delimiter without a closing one.
		return h, "", &DecodeError{Kind: KindMissingHeader}
	}
	block := rest[:end+1]
	body := rest[end+1+len(delimiter):]

	if err := yaml.Unmarshal([]byte(block), &h); err != nil {
		return models.Header{}, "", &DecodeError{Kind: KindMalformedHeader, cause: err}
	}
	if h.Title == "" || h.Description == "" || h.Version == "" {
		return models.Header{}, "", &DecodeError{
			Kind:  KindMissingRequiredField,
			cause: fmt.Errorf("header requires title, description and version"),
		}
	}
	if err := models.ValidateVersion(h.Version); err != nil {
		return models.Header{}, "", &DecodeError{Kind: KindInvalidVersion, cause: err}
	}

	return h, strings.Trim(body, "\n"), nil
}

// Encode serializes a header and body into canonical document text: fields
// in fixed order, unset optional fields omitted, tags always present in flow
// style, and exactly one blank line between header and body.
func Encode(h models.Header, body string) (string, error) {
	if h.Kind == "" {
		h.Kind = models.KindAgent
	}
	if h.Tags == nil {
		h.Tags = models.StringList{}
	}
	out, err := yaml.Marshal(&h)
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteString("\n")
	b.Write(out)
	b.WriteString(delimiter)
	b.WriteString("\n\n")
	b.WriteString(strings.Trim(body, "\n"))
	b.WriteString("\n")
	return b.String(), nil
}
