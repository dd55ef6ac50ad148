package extract

import (
	"bytes"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
)

// maxHintLength caps the text hint sent alongside a document so oversized
// PDFs do not blow up the collaborator request.
const maxHintLength = 20000

// PDFText extracts plain text from PDF bytes. Best effort: scanned or
// malformed PDFs return an error and the caller proceeds without a hint.
func PDFText(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeValidation, "failed to open pdf")
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeValidation, "failed to extract pdf text")
	}

	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeValidation, "failed to read pdf text")
	}

	text := strings.TrimSpace(b.String())
	if len(text) > maxHintLength {
		text = text[:maxHintLength]
	}
	return text, nil
}
