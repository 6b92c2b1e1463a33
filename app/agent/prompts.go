package agent

import (
	"fmt"
	"strings"
)

const (
	contextDelimiter = "\n\n---\n\n"

	groundedSystem = "You are a helpful assistant answering questions based ONLY on the provided context from a document. " +
		"If the context does not contain the answer, state that clearly. Do not make up information."

	noResultsAnswer = "I couldn't find any relevant information in the document to answer that."

	noSamplesAnswer = "No relevant information was found in the indexed documents for your query. " +
		"Please try a different query related to the content in the document."

	fallbackPrefix = "[No relevant context found in your documents. Here's a general response:]\n\n"

	// Some providers return this placeholder instead of an empty body.
	degenerateAnswer = "Empty Response"

	overviewSamples   = 5
	overviewSampleLen = 200
	previewLen        = 150
)

var descriptiveQueries = []string{
	"what am i looking at",
	"what is this document",
	"what does this document contain",
	"describe this document",
	"summarize this document",
	"what is in this document",
	"what can you tell me about this document",
}

func isDescriptive(query string) bool {
	q := strings.TrimRight(strings.ToLower(strings.TrimSpace(query)), "?")
	for _, d := range descriptiveQueries {
		if strings.Contains(q, d) {
			return true
		}
	}
	return false
}

func isDegenerate(answer string) bool {
	a := strings.TrimSpace(answer)
	return a == "" || a == degenerateAnswer
}

func groundedPrompt(context, question string) string {
	return fmt.Sprintf(`Context from the document:
---------------------
%s
---------------------

Question: %s

Answer based strictly on the context above:`, context, question)
}

func describePrompt(query, samples string) string {
	return fmt.Sprintf(`The user is asking '%s'.
Based on the following samples from the document, please provide a brief description of what
the document appears to contain or be about:

%s

Describe what type of document this appears to be and what content it contains.`, query, samples)
}

func fallbackPrompt(query, samples string) string {
	return fmt.Sprintf(`The user asked '%s' about a document, but no specific
information matching their query was found. Based on these samples from the document:

%s

Please provide a helpful response that explains what information is available in the document
and suggests how they might rephrase their query to get better results.`, query, samples)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
