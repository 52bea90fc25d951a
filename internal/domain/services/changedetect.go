package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/narravid/narravid/internal/domain/entities"
)

// Fingerprint computes the content fingerprint of chapter text. Line endings
// and trailing whitespace are normalized first so that editor churn does not
// count as a content change.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(normalizeContent(text)))
	return hex.EncodeToString(sum[:])
}

// normalizeContent canonicalizes text for fingerprinting.
func normalizeContent(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// DetectChange compares chapter text against the previously stored
// fingerprint and classifies the chapter as new, unchanged or modified.
// It has no side effects: the new fingerprint is committed only by the
// caller's stage commit, so detection is idempotent and safe to retry.
func DetectChange(storedFingerprint, text string) (entities.ChangeKind, string) {
	fp := Fingerprint(text)
	switch {
	case storedFingerprint == "":
		return entities.ChangeNew, fp
	case storedFingerprint == fp:
		return entities.ChangeUnchanged, fp
	default:
		return entities.ChangeModified, fp
	}
}
