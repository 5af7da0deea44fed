// Package frontmatter merges detected topics into a document's tags while
// leaving every other metadata key untouched.
package frontmatter

import "gopkg.in/yaml.v3"

// TagsKey is the metadata key maintained by the merger.
const TagsKey = "tags"

// Tags returns the normalised string view of meta's tags: absent or
// malformed → empty, a string scalar → one element, a sequence → its
// string items in order.
func Tags(meta *yaml.Node) []string {
	_, v := lookup(meta, TagsKey)
	var out []string
	for _, item := range tagItems(v) {
		if isString(item) {
			out = append(out, item.Value)
		}
	}
	return out
}

// Merge appends topics to meta's tags, skipping topics already present
// (exact match) and duplicates within topics. It returns the merged mapping
// and the topics actually added. When nothing is added the input node is
// returned as is. meta is never mutated; nil is treated as an empty mapping.
func Merge(meta *yaml.Node, topics []string) (*yaml.Node, []string) {
	idx, current := lookup(meta, TagsKey)
	items := tagItems(current)

	have := make(map[string]struct{}, len(items)+len(topics))
	for _, item := range items {
		if isString(item) {
			have[item.Value] = struct{}{}
		}
	}
	var added []string
	for _, t := range topics {
		if _, ok := have[t]; ok {
			continue
		}
		have[t] = struct{}{}
		added = append(added, t)
	}
	if len(added) == 0 {
		return meta, nil
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	if current != nil && current.Kind == yaml.SequenceNode {
		cp := *current
		seq = &cp
	}
	content := make([]*yaml.Node, 0, len(items)+len(added))
	content = append(content, items...)
	for _, t := range added {
		content = append(content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t})
	}
	seq.Content = content

	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if meta != nil {
		cp := *meta
		out = &cp
	}
	out.Content = make([]*yaml.Node, 0, len(out.Content)+2)
	if meta != nil {
		out.Content = append(out.Content, meta.Content...)
	}
	if idx >= 0 {
		out.Content[idx+1] = seq
	} else {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: TagsKey}
		out.Content = append(out.Content, key, seq)
	}
	return out, added
}

// lookup returns the index of key in a mapping's Content and its value
// node, or -1 and nil.
func lookup(meta *yaml.Node, key string) (int, *yaml.Node) {
	if meta == nil || meta.Kind != yaml.MappingNode {
		return -1, nil
	}
	for i := 0; i+1 < len(meta.Content); i += 2 {
		if k := meta.Content[i]; k.Kind == yaml.ScalarNode && k.Value == key {
			return i, meta.Content[i+1]
		}
	}
	return -1, nil
}

func tagItems(v *yaml.Node) []*yaml.Node {
	switch {
	case v == nil:
		return nil
	case v.Kind == yaml.SequenceNode:
		return v.Content
	case isString(v):
		return []*yaml.Node{{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Value}}
	default:
		return nil
	}
}

func isString(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str"
}
