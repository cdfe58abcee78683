// Package merkle links conversation turns into a hash chain. A turn's hash
// covers its content and its parent's hash, so the head of a chain identifies
// the whole conversation up to that turn.
//
// The relay keeps no state between requests. Since each request carries the
// full history, the head of one request's history plus the streamed reply
// hashes to the parent of the next request's final turn, which lets logs and
// traces join the requests of a conversation.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/papercomputeco/supportchat/pkg/llm"
)

// Node is a single content-addressed turn in a chain.
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous turn's hash.
	// This will be nil for the first turn.
	ParentHash *string `json:"parent_hash"`

	Turn llm.Message `json:"turn"`
}

// input is the canonical form that is hashed.
type input struct {
	Turn   llm.Message `json:"turn"`
	Parent string      `json:"parent,omitempty"`
}

// NewNode creates a node with the computed hash for turn.
func NewNode(turn llm.Message, parent *Node) *Node {
	n := &Node{
		Turn: turn,
	}

	if parent != nil {
		n.ParentHash = &parent.Hash
	}

	n.Hash = n.computeHash()
	return n
}

func (n *Node) computeHash() string {
	i := &input{
		Turn: n.Turn,
	}

	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	// Canonical JSON encoding for deterministic hashing
	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Chain links turns in order, first turn first.
func Chain(turns []llm.Message) []*Node {
	nodes := make([]*Node, 0, len(turns))
	var parent *Node
	for _, t := range turns {
		parent = NewNode(t, parent)
		nodes = append(nodes, parent)
	}
	return nodes
}

// Head returns the last node of the chain over turns, or nil when turns is empty.
func Head(turns []llm.Message) *Node {
	nodes := Chain(turns)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[len(nodes)-1]
}

// HeadHash returns the hash of Head(turns), or "" when turns is empty.
func HeadHash(turns []llm.Message) string {
	if head := Head(turns); head != nil {
		return head.Hash
	}
	return ""
}
