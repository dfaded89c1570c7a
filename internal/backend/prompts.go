package backend

import (
	"fmt"

	"specpilot/internal/phase"
)

// phaseInstructions maps each phase to the instruction sent ahead of
// the content packet.
var phaseInstructions = map[phase.ID]string{
	phase.Requirements: "Write a requirements document for the work described in the packet. Use EARS-style acceptance criteria.",
	phase.Design:       "Write a technical design document implementing the requirements in the packet.",
	phase.Tasks:        "Break the design in the packet into an ordered, dependency-annotated task list.",
	phase.Review:       "Review the artifacts in the packet. List defects with file and section references.",
	phase.Fixup:        "Apply the review findings in the packet. Produce corrected artifacts.",
	phase.Final:        "Produce the final consolidated deliverable from the artifacts in the packet.",
}

// systemPrompt is shared by every phase invocation.
const systemPrompt = "You are a document pipeline worker. Produce exactly one markdown document. Do not include commentary outside the document."

// BuildPrompt renders the user prompt for one request.
func BuildPrompt(req Request) string {
	instruction := phaseInstructions[req.Phase]
	packet := ""
	if req.Packet != nil {
		packet = req.Packet.Render()
	}
	return fmt.Sprintf("%s\n\n--- CONTENT PACKET ---\n%s", instruction, packet)
}
