package model

// OcrErrorCode enumerates the OCR-facade-specific failure modes named in
// the spec (§4.2), layered on top of the general ErrorKind taxonomy: every
// OcrErrorCode maps to exactly one ErrorKind via Kind().
type OcrErrorCode int

const (
	OcrInitFailed OcrErrorCode = iota
	OcrTimeout
	OcrEngineBusy
	OcrCancelled
	OcrTransientErr
	OcrFatalErr
	// OcrPaddlePredictor and OcrRunFailed are the two source-level
	// OCR failure signatures the orchestrator's cooldown-and-skip rule
	// (spec §4.10 step 11) keys off.
	OcrPaddlePredictor
	OcrRunFailed
)

// Kind maps an OCR error code to the general error taxonomy.
func (c OcrErrorCode) Kind() ErrorKind {
	switch c {
	case OcrCancelled:
		return ErrCancelled
	case OcrTimeout:
		return ErrTimeout
	case OcrEngineBusy, OcrTransientErr, OcrPaddlePredictor, OcrRunFailed:
		return ErrTransient
	case OcrInitFailed, OcrFatalErr:
		return ErrFatal
	default:
		return ErrFatal
	}
}

func (c OcrErrorCode) String() string {
	switch c {
	case OcrInitFailed:
		return "InitFailed"
	case OcrTimeout:
		return "Timeout"
	case OcrEngineBusy:
		return "EngineBusy"
	case OcrCancelled:
		return "Cancelled"
	case OcrTransientErr:
		return "Transient"
	case OcrFatalErr:
		return "Fatal"
	case OcrPaddlePredictor:
		return "PaddlePredictor"
	case OcrRunFailed:
		return "RunFailed"
	default:
		return "Unknown"
	}
}

// OcrErr wraps an OcrErrorCode as a PipelineError, tagging Signature with
// the code name so the orchestrator's backoff ladder can recognize repeated
// occurrences of the same failure.
func OcrErr(code OcrErrorCode, message string, cause error) *PipelineError {
	pe := New(code.Kind(), "ocr", code.String()+": "+message, cause)
	pe.Signature = code.String()
	return pe
}
