/*
Package builder grows document trees from raw HTML.

A Gardener detects the document charset, parses the markup with the
x/net/html parser and converts every element into a tree.Node. Attribute
keys are namespaced with "@", a node's body is its direct text and the
synthetic document node becomes a root tagged "document". Comments, the
doctype and whitespace-only text are dropped.

	g := builder.New(builder.WithScope("main"))
	root, err := g.Grow(ctx, page)

Untrusted pages can be passed through a bluemonday policy first with
WithSanitizer or Sanitized. Sanitizing drops the html, head and body
wrappers along with scripts and styles, so scopes should name content
elements.
*/
package builder
