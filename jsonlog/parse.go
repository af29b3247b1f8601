package jsonlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/mvailla/spantree"
)

// TreeNode is the offline-reconstructed read view of a logged span.
type TreeNode struct {
	id       spantree.ID
	name     string
	data     map[string]any
	parent   *TreeNode
	children []*TreeNode
}

var _ spantree.Tree = (*TreeNode)(nil)

func (n *TreeNode) ID() spantree.ID                      { return n.id }
func (n *TreeNode) Name(context.Context) (string, error) { return n.name, nil }
func (n *TreeNode) Data(context.Context) (map[string]any, error) {
	return spantree.MergePatchMap(nil, n.data), nil
}

func (n *TreeNode) Children(context.Context) ([]spantree.Tree, error) {
	trees := make([]spantree.Tree, len(n.children))
	for i, c := range n.children {
		trees[i] = c
	}
	return trees, nil
}

func (n *TreeNode) Parent(context.Context) (spantree.Tree, error) {
	if n.parent == nil {
		return nil, nil
	}
	return n.parent, nil
}

// ParseTree replays the log at path into a tree. Insert records create
// nodes, patch records merge into them; children end up sorted by id, which
// is creation order because ids are time-ordered. Exactly one root (a node
// without parent) must exist.
func ParseTree(path string) (*TreeNode, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	defer file.Close()

	nodes := map[spantree.ID]*TreeNode{}
	parents := map[spantree.ID]spantree.ID{}
	var roots []*TreeNode

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("parse trace log line %d: %w", line, err)
		}
		id, err := spantree.ParseID(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("parse trace log line %d: %w", line, err)
		}
		switch rec.Op {
		case opInsert:
			node := &TreeNode{id: id, name: rec.Name, data: spantree.MergePatchMap(nil, rec.Data)}
			nodes[id] = node
			if rec.ParentID == "" {
				roots = append(roots, node)
				continue
			}
			parentID, err := spantree.ParseID(rec.ParentID)
			if err != nil {
				return nil, fmt.Errorf("parse trace log line %d: %w", line, err)
			}
			parents[id] = parentID
		case opPatch:
			node, ok := nodes[id]
			if !ok {
				return nil, fmt.Errorf("parse trace log line %d: patch for unknown span %s", line, rec.ID)
			}
			node.data = spantree.MergePatchMap(node.data, rec.Data)
		default:
			return nil, fmt.Errorf("parse trace log line %d: unknown op %q", line, rec.Op)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace log: %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("parse trace log: no spans in %s", path)
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("parse trace log: expected exactly one root, got %d", len(roots))
	}

	for id, parentID := range parents {
		parent, ok := nodes[parentID]
		if !ok {
			return nil, fmt.Errorf("parse trace log: span %s references unknown parent %s", id, parentID)
		}
		child := nodes[id]
		child.parent = parent
		parent.children = append(parent.children, child)
	}
	for _, node := range nodes {
		sort.Slice(node.children, func(i, j int) bool {
			return string(node.children[i].id.Bytes()) < string(node.children[j].id.Bytes())
		})
	}
	return roots[0], nil
}
