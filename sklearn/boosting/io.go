package boosting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/penguinml/core/model"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

const jsonFormatVersion = "1"

// JSONModel is the persisted form of a Booster.
type JSONModel struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	RunID        string         `json:"run_id,omitempty"`
	Params       Params         `json:"params"`
	NumFeature   int            `json:"num_feature"`
	FeatureNames []string       `json:"feature_names,omitempty"`
	TreeInfo     []JSONTreeInfo `json:"trees"`
}

// JSONTreeInfo represents information about a single tree
type JSONTreeInfo struct {
	TreeIndex     int          `json:"tree_index"`
	Class         int          `json:"class"`
	NumLeaves     int          `json:"num_leaves"`
	Shrinkage     float64      `json:"shrinkage"`
	TreeStructure JSONTreeNode `json:"tree_structure"`
}

// JSONTreeNode is a tree node in the nested layout of an XGBoost JSON
// dump. A node with a Leaf value is terminal; any other node has exactly
// two children, the "yes" branch first.
type JSONTreeNode struct {
	NodeID         int             `json:"nodeid"`
	Depth          int             `json:"depth"`
	Split          string          `json:"split,omitempty"`
	SplitCondition float64         `json:"split_condition,omitempty"`
	Yes            int             `json:"yes,omitempty"`
	No             int             `json:"no,omitempty"`
	Missing        int             `json:"missing,omitempty"`
	Gain           float64         `json:"gain,omitempty"`
	Cover          float64         `json:"cover"`
	Leaf           *float64        `json:"leaf,omitempty"`
	Children       []*JSONTreeNode `json:"children,omitempty"`
}

// Save writes the booster as JSON, replacing path atomically.
func (b *Booster) Save(path string) error {
	if err := b.state.RequireFitted("Booster", "Save"); err != nil {
		return err
	}
	err := model.WriteFileAtomic(path, func(w io.Writer) error {
		return b.WriteJSON(w)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save booster to %s", path)
	}
	return nil
}

// WriteJSON encodes the booster to w.
func (b *Booster) WriteJSON(w io.Writer) error {
	jm := JSONModel{
		Name:         "penguinml-gbdt",
		Version:      jsonFormatVersion,
		RunID:        b.RunID,
		Params:       b.Params,
		NumFeature:   b.NumFeatures,
		FeatureNames: b.featureNames,
		TreeInfo:     make([]JSONTreeInfo, len(b.Trees)),
	}
	for i := range b.Trees {
		tree := &b.Trees[i]
		jm.TreeInfo[i] = JSONTreeInfo{
			TreeIndex:     tree.TreeIndex,
			Class:         tree.Class,
			NumLeaves:     tree.NumLeaves(),
			Shrinkage:     tree.ShrinkageRate,
			TreeStructure: *b.dumpNode(tree, 0, 0),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&jm); err != nil {
		return errors.Wrap(err, "failed to encode booster")
	}
	return nil
}

func (b *Booster) dumpNode(tree *Tree, nodeID, depth int) *JSONTreeNode {
	node := &tree.Nodes[nodeID]
	out := &JSONTreeNode{
		NodeID: node.NodeID,
		Depth:  depth,
		Cover:  node.Cover,
	}
	if node.IsLeaf() {
		leaf := node.LeafValue
		out.Leaf = &leaf
		return out
	}

	out.Split = b.featureName(node.SplitFeature)
	out.SplitCondition = node.Threshold
	out.Yes = node.LeftChild
	out.No = node.RightChild
	out.Missing = node.RightChild
	if node.DefaultLeft {
		out.Missing = node.LeftChild
	}
	out.Gain = node.Gain
	out.Children = []*JSONTreeNode{
		b.dumpNode(tree, node.LeftChild, depth+1),
		b.dumpNode(tree, node.RightChild, depth+1),
	}
	return out
}

func (b *Booster) featureName(idx int) string {
	if idx < len(b.featureNames) {
		return b.featureNames[idx]
	}
	return fmt.Sprintf("f%d", idx)
}

// LoadBooster reads a booster written by Save.
func LoadBooster(path string) (*Booster, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingArtifactError("classifier", path)
		}
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	b, err := ReadJSON(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load booster from %s", path)
	}
	return b, nil
}

// ReadJSON decodes a booster from r and validates its structure.
func ReadJSON(r io.Reader) (*Booster, error) {
	var jm JSONModel
	if err := json.NewDecoder(r).Decode(&jm); err != nil {
		return nil, errors.Wrap(err, "failed to parse JSON")
	}
	if err := jm.Params.Validate(); err != nil {
		return nil, err
	}
	if jm.NumFeature < 1 {
		return nil, errors.NewValueError("ReadJSON", "num_feature must be positive")
	}
	if jm.FeatureNames != nil && len(jm.FeatureNames) != jm.NumFeature {
		return nil, errors.NewDimensionError("ReadJSON", jm.NumFeature, len(jm.FeatureNames), 1)
	}
	if len(jm.TreeInfo) == 0 || len(jm.TreeInfo)%jm.Params.NumClass != 0 {
		return nil, errors.NewValueError("ReadJSON",
			fmt.Sprintf("tree count %d is not a positive multiple of num_class %d", len(jm.TreeInfo), jm.Params.NumClass))
	}

	b := NewBooster(jm.Params)
	b.RunID = jm.RunID
	b.NumFeatures = jm.NumFeature
	if jm.FeatureNames != nil {
		b.SetFeatureNames(jm.FeatureNames)
	}

	featureIndex := make(map[string]int, len(jm.FeatureNames))
	for i, name := range jm.FeatureNames {
		featureIndex[name] = i
	}

	b.Trees = make([]Tree, len(jm.TreeInfo))
	for i, info := range jm.TreeInfo {
		if info.Class < 0 || info.Class >= jm.Params.NumClass {
			return nil, errors.NewValueError("ReadJSON", fmt.Sprintf("tree %d: class %d out of range", i, info.Class))
		}
		tree := Tree{
			TreeIndex:     info.TreeIndex,
			Class:         info.Class,
			ShrinkageRate: info.Shrinkage,
		}
		if err := loadNode(&tree, &info.TreeStructure, featureIndex, jm.NumFeature); err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		b.Trees[i] = tree
	}

	b.state.SetDimensions(jm.NumFeature, 0)
	b.state.SetFitted()
	return b, nil
}

// loadNode appends jn's subtree in pre-order, renumbering nodes so that
// IDs are slice positions.
func loadNode(tree *Tree, jn *JSONTreeNode, featureIndex map[string]int, numFeature int) error {
	nodeID := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, Node{
		NodeID:     nodeID,
		LeftChild:  -1,
		RightChild: -1,
		Cover:      jn.Cover,
	})
	if jn.Depth > tree.MaxDepth {
		tree.MaxDepth = jn.Depth
	}

	if jn.Leaf != nil {
		if len(jn.Children) != 0 {
			return errors.NewValueError("ReadJSON", fmt.Sprintf("node %d has both a leaf value and children", jn.NodeID))
		}
		tree.Nodes[nodeID].LeafValue = *jn.Leaf
		return nil
	}
	if len(jn.Children) != 2 || jn.Children[0] == nil || jn.Children[1] == nil {
		return errors.NewValueError("ReadJSON", fmt.Sprintf("node %d must have exactly two children", jn.NodeID))
	}

	feature, err := parseFeature(jn.Split, featureIndex, numFeature)
	if err != nil {
		return err
	}

	// children[0] is the "yes" branch
	yes, no := jn.Children[0], jn.Children[1]
	if yes.NodeID != jn.Yes || no.NodeID != jn.No {
		return errors.NewValueError("ReadJSON", fmt.Sprintf("node %d: children do not match yes/no", jn.NodeID))
	}

	tree.Nodes[nodeID].SplitFeature = feature
	tree.Nodes[nodeID].Threshold = jn.SplitCondition
	tree.Nodes[nodeID].Gain = jn.Gain
	tree.Nodes[nodeID].DefaultLeft = jn.Missing == jn.Yes

	tree.Nodes[nodeID].LeftChild = len(tree.Nodes)
	if err := loadNode(tree, yes, featureIndex, numFeature); err != nil {
		return err
	}
	tree.Nodes[nodeID].RightChild = len(tree.Nodes)
	return loadNode(tree, no, featureIndex, numFeature)
}

func parseFeature(split string, featureIndex map[string]int, numFeature int) (int, error) {
	if idx, ok := featureIndex[split]; ok {
		return idx, nil
	}
	if strings.HasPrefix(split, "f") {
		if idx, err := strconv.Atoi(split[1:]); err == nil && idx >= 0 && idx < numFeature {
			return idx, nil
		}
	}
	return 0, errors.NewValueError("ReadJSON", fmt.Sprintf("unknown split feature %q", split))
}
