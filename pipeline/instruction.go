package pipeline

import (
	"fmt"
	"strings"

	"go.aimuz.me/ergowatch/internal/types"
)

// DeepInstruction is the fixed prompt sent with every deep-analysis frame.
var DeepInstruction = buildDeepInstruction()

func buildDeepInstruction() string {
	var b strings.Builder
	b.WriteString("You are an ergonomics assessor. Analyze the person at the desk in this webcam image ")
	b.WriteString("and assess four categories. For each category pick exactly one status from the list ")
	b.WriteString("and give a short message explaining what you see.\n\n")
	for _, c := range types.Categories {
		statuses := types.AllowedStatuses(c)
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = fmt.Sprintf("%q", s)
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", c.Label(), c, strings.Join(names, ", "))
	}
	b.WriteString("\nAlso write a one-sentence summary. Respond only with JSON matching the schema.")
	return b.String()
}
