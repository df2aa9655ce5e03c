package chat

import "github.com/lorebook/lorebook/internal/models"

// detailInstruction returns the verbosity directive injected into the
// answer prompt. Unknown levels fall back to normal.
func detailInstruction(level models.DetailLevel) string {
	switch level {
	case models.DetailBrief:
		return "Provide a compact answer that directly addresses the request with minimal setup. Prefer one clear conclusion and only the most essential supporting points. When listing examples, include just a few representative items rather than trying to be exhaustive. If quantities matter, summarize them (e.g., \"several key factors\") instead of enumerating every item."
	case models.DetailDetailed:
		return "Provide a comprehensive answer that covers all relevant aspects and includes detailed explanations. Include multiple supporting points, examples, and tradeoffs when appropriate. If quantities matter, enumerate every item in the list. When listing examples, include a few representative items rather than trying to be exhaustive."
	case models.DetailMeticulous:
		return "Provide an exhaustive, carefully organized response that aims to anticipate follow-up questions. Enumerate items as fully as possible (within the user's constraints), and only collapse lists into counts when repetition would add no value. State assumptions explicitly, explore alternative interpretations, and address edge cases, counterexamples, and failure modes. Use precise terminology, include validation steps or checks when applicable, and end with a concise recap of key takeaways and any remaining uncertainties."
	case models.DetailNormal:
		fallthrough
	default:
		return "Provide a clear, complete answer that covers the main points a typical user would expect. Include enough context to understand the reasoning, but avoid long digressions. Use short lists when they improve readability, and include a handful of examples when helpful. If the topic is complex, mention the most important tradeoffs or caveats without exploring every edge case."
	}
}
