package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	// Status class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef fired fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef passed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef eligible fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef rejected fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef idle fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef blocked fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef skipped fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	for _, node := range model.Nodes {
		if node.Status != nil && node.Status.Status != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), node.Status.Status))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))
	if node.Status != nil && node.Status.Detail != "" {
		label += " = " + mermaidEscapeLabel(node.Status.Detail)
	}

	switch node.Kind {
	case NodeKindTrigger:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindCondition:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindUnknown:
		return fmt.Sprintf("%s[/%q/]", id, label)
	default: // action
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces quotes, which end a Mermaid label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}
