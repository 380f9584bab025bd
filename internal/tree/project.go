package tree

import "strings"

// Structural field names accepted by Project.
const (
	FieldID            = "id"
	FieldTagType       = "tag_type"
	FieldHasData       = "has_data"
	FieldAttributes    = "attributes"
	FieldBody          = "body"
	FieldChildren      = "children"
	FieldParent        = "parent"
	FieldParentID      = "parent-id"
	FieldExtractFields = "extract_fields"
	FieldExtractFlags  = "extract_flags"
)

// IsField reports whether name is a valid field specifier: an attribute
// reference or one of the structural field names.
func IsField(name string) bool {
	if strings.HasPrefix(name, AttributePrefix) {
		return len(name) > len(AttributePrefix)
	}
	switch name {
	case FieldID, FieldTagType, FieldHasData, FieldAttributes, FieldBody,
		FieldChildren, FieldParent, FieldParentID, FieldExtractFields, FieldExtractFlags:
		return true
	}
	return false
}

// Project returns a mapping view of n. With nil fields the whole subtree is
// projected; otherwise only the listed fields are emitted. Attribute fields
// are looked up verbatim and map to nil when missing. Unknown structural
// names are ignored. SuppressChildren drops "children" even when requested.
func (n *Node) Project(fields []string, flags ExtractFlags) map[string]any {
	if fields == nil {
		out := map[string]any{
			FieldID:            n.ID,
			FieldTagType:       n.TagType,
			FieldHasData:       n.HasData,
			FieldAttributes:    n.attributesCopy(),
			FieldBody:          n.Body,
			FieldParent:        n.parentID(),
			FieldExtractFields: n.extractFieldsCopy(),
			FieldExtractFlags:  n.ExtractFlags.Map(),
		}
		if !flags.SuppressChildren {
			out[FieldChildren] = n.projectChildren(nil, flags.shift())
		}
		return out
	}

	out := make(map[string]any, len(fields))
	for _, field := range fields {
		if strings.HasPrefix(field, AttributePrefix) {
			if v, ok := n.Attributes[field]; ok {
				out[field] = v
			} else {
				out[field] = nil
			}
			continue
		}
		switch field {
		case FieldID:
			out[field] = n.ID
		case FieldTagType:
			out[field] = n.TagType
		case FieldHasData:
			out[field] = n.HasData
		case FieldAttributes:
			out[field] = n.attributesCopy()
		case FieldBody:
			out[field] = n.Body
		case FieldParent, FieldParentID:
			out[field] = n.parentID()
		case FieldExtractFields:
			out[field] = n.extractFieldsCopy()
		case FieldExtractFlags:
			out[field] = n.ExtractFlags.Map()
		case FieldChildren:
			if !flags.SuppressChildren {
				out[field] = n.projectChildren(fields, flags.shift())
			}
		}
	}
	return out
}

// ProjectAnnotated projects n with its own extraction annotation.
func (n *Node) ProjectAnnotated() map[string]any {
	return n.Project(n.ExtractFields, n.ExtractFlags)
}

func (n *Node) projectChildren(fields []string, flags ExtractFlags) []map[string]any {
	children := make([]map[string]any, 0, len(n.Children))
	for _, child := range n.Children {
		children = append(children, child.Project(fields, flags))
	}
	return children
}

func (n *Node) parentID() any {
	if n.Parent == nil {
		return nil
	}
	return n.Parent.ID
}

func (n *Node) attributesCopy() map[string]string {
	attrs := make(map[string]string, len(n.Attributes))
	for k, v := range n.Attributes {
		attrs[k] = v
	}
	return attrs
}

func (n *Node) extractFieldsCopy() []string {
	if n.ExtractFields == nil {
		return nil
	}
	return append([]string(nil), n.ExtractFields...)
}
