package mux

const (
	PlainPrompt = "Please provide the text in the image without adding any comment or summary."

	DetailedPrompt = `You are an advanced OCR tool. Your task is to accurately transcribe the text from the provided image.
Please follow these guidelines to ensure the transcription is as correct as possible:
1. **Preserve Line Structure**: Transcribe the text exactly as it appears in the image, including line breaks.
2. **Avoid Splitting Words**: Ensure that words are fully formed, even if they appear across two lines or are partially obscured. Join word parts together appropriately to create complete words.
3. **Correct Unnatural Spacing**: Do not add extra spaces between characters in a word. Make sure the words are spaced naturally, without any unwanted breaks or gaps.
4. **Recognize and Correct Word Breaks**: If any word is mistakenly broken into parts, join them correctly to produce a natural, readable word.
5. **No Additional Comments or Analysis**: Provide only the raw text as it appears in the image, without any additional analysis, comments, or summaries.
6. **Output as a Block of Text**: Output the entire transcribed text as a block, maintaining the line breaks, but ensuring that each word appears as it should, with correct spelling, no character-level splits, and no hyphenations unless they appear naturally in the image.`
)

// Prompt resolves a configured prompt: empty or "plain", "detailed", else the text itself.
func Prompt(p string) string {
	switch p {
	case "", "plain":
		return PlainPrompt
	case "detailed":
		return DetailedPrompt
	}
	return p
}
