package ocr

// transcribePrompt asks a vision model for a plain transcription. Neural
// engines never see the classical result, so their output stays independent.
const transcribePrompt = `Transcribe all printed or handwritten text visible in this image.
Return one line of output per line of text, top to bottom, left to right.
Do not describe the image, translate, or add commentary. If there is no text, return nothing.`

// neuralConfidence is the prior assigned to neural transcriptions, which do
// not report per-line confidence.
const neuralConfidence = 0.85

func linesToFragments(text, engine string, variantID int) []Fragment {
	lines := splitLines(text)
	out := make([]Fragment, 0, len(lines))
	for _, line := range lines {
		out = append(out, Fragment{
			Text:       line,
			Engine:     engine,
			Kind:       Neural,
			VariantID:  variantID,
			Confidence: neuralConfidence,
			Seq:        len(out),
		})
	}
	return out
}
