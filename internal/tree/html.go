package tree

import (
	"sort"
	"strings"
)

// voidTags never carry children or a closing tag.
var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// HTML renders the subtree as indented markup, one element per line.
// Attributes are written in sorted order without their "@" marker.
func (n *Node) HTML() string {
	var sb strings.Builder
	n.writeHTML(&sb, 0)
	return sb.String()
}

func (n *Node) writeHTML(sb *strings.Builder, depth int) {
	pad := strings.Repeat("  ", depth)
	sb.WriteString(pad)
	sb.WriteByte('<')
	sb.WriteString(n.TagType)

	keys := make([]string, 0, len(n.Attributes))
	for k := range n.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(strings.TrimPrefix(k, AttributePrefix))
		sb.WriteString(`="`)
		sb.WriteString(n.Attributes[k])
		sb.WriteByte('"')
	}

	void := voidTags[n.TagType]
	if void {
		sb.WriteString(" />")
	} else {
		sb.WriteByte('>')
	}
	if n.HasData {
		sb.WriteByte(' ')
		sb.WriteString(n.Body)
	}
	sb.WriteByte('\n')

	for _, child := range n.Children {
		child.writeHTML(sb, depth+1)
	}

	if !void {
		sb.WriteString(pad)
		sb.WriteString("</")
		sb.WriteString(n.TagType)
		sb.WriteString(">\n")
	}
}
