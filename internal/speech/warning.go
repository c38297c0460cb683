package speech

import "fmt"

// WarningCode is a stable identifier for a soft failure that was recovered from.
type WarningCode string

const (
	WarnSSMLParseFailed      WarningCode = "SSML_PARSE_FAILED"
	WarnSSMLTagStripped      WarningCode = "SSML_TAG_STRIPPED"
	WarnSSMLUnclosedTag      WarningCode = "SSML_UNCLOSED_TAG"
	WarnChunkedText          WarningCode = "CHUNKED_TEXT"
	WarnTruncated            WarningCode = "TRUNCATED"
	WarnEmotionMismatch      WarningCode = "EMOTION_MISMATCH"
	WarnEmotionUnsupported   WarningCode = "EMOTION_UNSUPPORTED"
	WarnDialogueCastInvalid  WarningCode = "DIALOGUE_CAST_INVALID"
	WarnDialogueUnrecognized WarningCode = "DIALOGUE_UNRECOGNIZED_LINE"
	WarnDialogueEmptyLine    WarningCode = "DIALOGUE_EMPTY_LINE"
	WarnSfxDisabled          WarningCode = "SFX_DISABLED"
	WarnSfxUnknownTag        WarningCode = "SFX_UNKNOWN_TAG"
	WarnSfxMaxEvents         WarningCode = "SFX_MAX_EVENTS"
	WarnSfxRequiresConcat    WarningCode = "SFX_REQUIRES_CONCAT"
	WarnSynthesisInterrupted WarningCode = "SYNTHESIS_INTERRUPTED"
	WarnConcatFailed         WarningCode = "CONCAT_FAILED"
)

// Warning is appended to a result whenever a fallback was taken. Warnings are
// never returned as errors.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

func Warnf(code WarningCode, format string, args ...any) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HasWarning reports whether warnings contain at least one entry with code.
func HasWarning(warnings []Warning, code WarningCode) bool {
	return CountWarnings(warnings, code) > 0
}

func CountWarnings(warnings []Warning, code WarningCode) int {
	n := 0
	for _, w := range warnings {
		if w.Code == code {
			n++
		}
	}
	return n
}

// WarningCodes returns the codes in order, used for history records.
func WarningCodes(warnings []Warning) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, string(w.Code))
	}
	return out
}
