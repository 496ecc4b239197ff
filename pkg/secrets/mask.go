package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Style selects how MaskValue hides a value.
type Style string

const (
	// StyleFull replaces the whole value.
	StyleFull Style = "full"
	// StylePartial keeps a short prefix.
	StylePartial Style = "partial"
	// StyleHash replaces the value with a SHA-256 fingerprint.
	StyleHash Style = "hash"
)

// MaskValue masks value according to style. Partial masking keeps the first
// showChars characters; values no longer than that are fully masked.
func MaskValue(value string, style Style, showChars int) string {
	switch style {
	case StyleFull:
		return "***"
	case StyleHash:
		return hashMask(value)
	default:
		return partialMask(value, showChars, "***")
	}
}

func partialMask(value string, showChars int, replacement string) string {
	if len(value) <= showChars {
		return replacement
	}
	return value[:showChars] + replacement
}

// hashMask lets two log lines be compared for the same secret without
// revealing it.
func hashMask(value string) string {
	hash := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(hash[:])[:16]
}

// MaskingWriter wraps an io.Writer and redacts each write before forwarding.
// Secrets split across two writes are not detected; callers write whole lines.
type MaskingWriter struct {
	redactor *Redactor
	delegate io.Writer
}

// NewMaskingWriter creates a MaskingWriter.
func NewMaskingWriter(redactor *Redactor, delegate io.Writer) *MaskingWriter {
	return &MaskingWriter{
		redactor: redactor,
		delegate: delegate,
	}
}

// Write implements io.Writer.
func (w *MaskingWriter) Write(p []byte) (n int, err error) {
	masked := w.redactor.Redact(string(p))

	if _, err = w.delegate.Write([]byte(masked)); err != nil {
		return 0, err
	}

	// Report the original length to keep the io.Writer contract.
	return len(p), nil
}
