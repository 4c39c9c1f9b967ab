// Package prompt builds the grounded instruction sent to the language model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/nickcecere/docrag/internal/rag"
)

// UnknownAnswer is the marker the model must reply with when the fragments
// do not contain the answer.
const UnknownAnswer = "I don't know"

// SystemMessage constrains the model to the supplied context.
const SystemMessage = "You are a helpful assistant that must only answer based on provided context."

// Label returns the citation label for the fragment at 1-based position i.
func Label(i int, source string) string {
	return fmt.Sprintf("[Fragment %d | Source: %s]", i, source)
}

// Assemble combines ranked results and the query into one instruction.
// Fragments appear in ranking order, labelled with their 1-based position
// and source; the query is included verbatim.
func Assemble[P rag.Passage](query string, results []P) string {
	var sb strings.Builder

	if len(results) == 0 {
		sb.WriteString("No relevant knowledge fragments were found for the question below.\n")
		fmt.Fprintf(&sb, "Do not guess or use outside knowledge. Answer exactly: %q.\n\n", UnknownAnswer)
		sb.WriteString("User question: ")
		sb.WriteString(query)
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString("Below are knowledge fragments retrieved for the user's question.\n")
	sb.WriteString("Answer ONLY based on these fragments. ")
	fmt.Fprintf(&sb, "If the fragments do not contain the answer, reply %q.\n\n", UnknownAnswer)

	for i, r := range results {
		sb.WriteString(Label(i+1, r.Source()))
		sb.WriteString("\n")
		sb.WriteString(r.Text())
		sb.WriteString("\n\n")
	}

	sb.WriteString("User question: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString("Give a concise, accurate answer and list the cited sources (by fragment label) at the end.\n")

	return sb.String()
}

// Direct is the prompt used when answering without retrieval, for comparison.
func Direct(query string) string {
	return "Answer the following question concisely.\n\nUser question: " + query + "\n"
}
