// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-agentclient.
//
// go-agentclient is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package sexp

import (
	"encoding/hex"
	"strings"
)

// Node is one element of a parsed expression: either an atom or a list.
type Node struct {
	// Value holds the atom octets. It is nil for lists.
	Value []byte

	// Children holds the list elements. It is nil for atoms.
	Children []*Node

	list bool
}

// Parse decodes a canonical expression into a tree. The input must contain
// exactly one expression.
func Parse(b []byte) (*Node, error) {
	if err := ValidateExact(b); err != nil {
		return nil, err
	}
	node, _ := parseList(b, 0)
	return node, nil
}

// parseList assumes b has already been validated.
func parseList(b []byte, i int) (*Node, int) {
	node := &Node{list: true}
	i++ // '('
	for b[i] != ')' {
		if b[i] == '(' {
			child, next := parseList(b, i)
			node.Children = append(node.Children, child)
			i = next
			continue
		}
		n, start, _ := parseLength(b, i)
		node.Children = append(node.Children, &Node{Value: b[start : start+n]})
		i = start + n
	}
	return node, i + 1
}

// IsList reports whether the node is a list.
func (n *Node) IsList() bool {
	return n.list
}

// Token returns the first atom of a list as a string, which by convention
// names the list. It returns "" for atoms and lists not led by an atom.
func (n *Node) Token() string {
	if !n.list || len(n.Children) == 0 || n.Children[0].list {
		return ""
	}
	return string(n.Children[0].Value)
}

// Find returns the first list, searching depth-first, whose token equals name.
func (n *Node) Find(name string) *Node {
	if !n.list {
		return nil
	}
	if n.Token() == name {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Encode renders the node back into canonical form.
func (n *Node) Encode() ([]byte, error) {
	b := NewBuilder()
	n.encode(b)
	return b.Bytes()
}

func (n *Node) encode(b *Builder) {
	if !n.list {
		b.Atom(n.Value)
		return
	}
	b.Open()
	for _, c := range n.Children {
		c.encode(b)
	}
	b.Close()
}

// String renders the node in the human readable advanced form, for example
// (public-key (rsa (n #00C3...#) (e #010001#))).
func (n *Node) String() string {
	var sb strings.Builder
	n.format(&sb)
	return sb.String()
}

func (n *Node) format(sb *strings.Builder) {
	if !n.list {
		if isToken(n.Value) {
			sb.Write(n.Value)
			return
		}
		sb.WriteByte('#')
		sb.WriteString(strings.ToUpper(hex.EncodeToString(n.Value)))
		sb.WriteByte('#')
		return
	}
	sb.WriteByte('(')
	for i, c := range n.Children {
		if i > 0 {
			sb.WriteByte(' ')
		}
		c.format(sb)
	}
	sb.WriteByte(')')
}

func isToken(v []byte) bool {
	if len(v) == 0 || (v[0] >= '0' && v[0] <= '9') {
		return false
	}
	for _, c := range v {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("-./_:*+=", c) >= 0:
		default:
			return false
		}
	}
	return true
}
