package ml

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"sort"
)

// GradientBoosting is a squared-loss boosted ensemble of shallow
// regression trees. Each round fits a tree to the current residuals and
// the ensemble advances by LearningRate times the tree's prediction.
type GradientBoosting struct {
	LearningRate   float64          `json:"learning_rate"`
	Rounds         int              `json:"rounds"`
	MaxDepth       int              `json:"max_depth"`
	MinLeaf        int              `json:"min_leaf"`
	BasePrediction float64          `json:"base_prediction"`
	Trees          []regressionTree `json:"trees"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewGradientBoosting(rounds, maxDepth int, learningRate float64) *GradientBoosting {
	if rounds <= 0 {
		rounds = 100
	}
	if maxDepth <= 0 {
		maxDepth = 6
	}
	if learningRate <= 0 || learningRate > 1 {
		learningRate = 0.1
	}
	return &GradientBoosting{
		LearningRate: learningRate,
		Rounds:       rounds,
		MaxDepth:     maxDepth,
		MinLeaf:      5,
	}
}

func (g *GradientBoosting) Train(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	if g.Rounds <= 0 {
		*g = *NewGradientBoosting(g.Rounds, g.MaxDepth, g.LearningRate)
	}

	g.BasePrediction = mean(targets)
	g.Trees = g.Trees[:0]

	residuals := make([]float64, len(targets))
	for i, target := range targets {
		residuals[i] = target - g.BasePrediction
	}

	minLeaf := g.MinLeaf
	if minLeaf <= 0 {
		minLeaf = 1
	}
	for round := 0; round < g.Rounds; round++ {
		tree := regressionTree{Nodes: buildRegressionNode(features, residuals, 0, g.MaxDepth, minLeaf)}
		g.Trees = append(g.Trees, tree)
		for i, row := range features {
			residuals[i] -= g.LearningRate * tree.predict(row)
		}
	}
	return nil
}

func (g *GradientBoosting) Predict(features []float64) (float64, error) {
	if len(g.Trees) == 0 {
		return 0, errors.New("model not trained")
	}
	prediction := g.BasePrediction
	for _, tree := range g.Trees {
		prediction += g.LearningRate * tree.predict(features)
	}
	return prediction, nil
}

func (g *GradientBoosting) Save(path string) error {
	if len(g.Trees) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (g *GradientBoosting) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded GradientBoosting
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	*g = loaded
	return nil
}

func (t regressionTree) predict(features []float64) float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.Value
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return node.Value
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return node.Value
		}
	}
}

// buildRegressionNode grows a tree as a flat node slice: the subtree
// root first, then the whole left subtree, then the right.
func buildRegressionNode(features [][]float64, targets []float64, depth, maxDepth, minLeaf int) []treeNode {
	value := mean(targets)
	leaf := []treeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      value,
		IsLeaf:     true,
	}}
	if depth >= maxDepth || len(targets) < 2*minLeaf {
		return leaf
	}

	bestFeature, threshold, ok := findBestRegressionSplit(features, targets, minLeaf)
	if !ok {
		return leaf
	}

	leftFeatures, leftTargets, rightFeatures, rightTargets := splitSamples(features, targets, bestFeature, threshold)
	if len(leftTargets) < minLeaf || len(rightTargets) < minLeaf {
		return leaf
	}

	leftNodes := buildRegressionNode(leftFeatures, leftTargets, depth+1, maxDepth, minLeaf)
	rightNodes := buildRegressionNode(rightFeatures, rightTargets, depth+1, maxDepth, minLeaf)

	root := treeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		Value:      value,
	}
	nodes := make([]treeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	nodes = append(nodes, rightNodes...)
	return nodes
}

// findBestRegressionSplit scans quartile thresholds per feature and
// keeps the split with the lowest weighted squared error.
func findBestRegressionSplit(features [][]float64, targets []float64, minLeaf int) (int, float64, bool) {
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestScore := math.MaxFloat64

	values := make([]float64, len(features))
	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		for _, threshold := range quartiles(values) {
			left, right := partitionTargets(features, targets, featureIdx, threshold)
			if len(left) < minLeaf || len(right) < minLeaf {
				continue
			}
			score := weightedSquaredError(left, right)
			if score < bestScore {
				bestScore = score
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitSamples(features [][]float64, targets []float64, featureIdx int, threshold float64) ([][]float64, []float64, [][]float64, []float64) {
	leftFeatures := make([][]float64, 0, len(features))
	leftTargets := make([]float64, 0, len(targets))
	rightFeatures := make([][]float64, 0, len(features))
	rightTargets := make([]float64, 0, len(targets))
	for i, row := range features {
		if row[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, row)
			leftTargets = append(leftTargets, targets[i])
		} else {
			rightFeatures = append(rightFeatures, row)
			rightTargets = append(rightTargets, targets[i])
		}
	}
	return leftFeatures, leftTargets, rightFeatures, rightTargets
}

func partitionTargets(features [][]float64, targets []float64, featureIdx int, threshold float64) ([]float64, []float64) {
	left := make([]float64, 0, len(targets))
	right := make([]float64, 0, len(targets))
	for i, row := range features {
		if row[featureIdx] <= threshold {
			left = append(left, targets[i])
		} else {
			right = append(right, targets[i])
		}
	}
	return left, right
}

func weightedSquaredError(left, right []float64) float64 {
	total := float64(len(left) + len(right))
	return (float64(len(left))/total)*squaredError(left) + (float64(len(right))/total)*squaredError(right)
}

func squaredError(targets []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	m := mean(targets)
	sum := 0.0
	for _, target := range targets {
		diff := target - m
		sum += diff * diff
	}
	return sum / float64(len(targets))
}

func quartiles(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	candidates := []float64{
		sorted[len(sorted)/4],
		sorted[len(sorted)/2],
		sorted[(3*len(sorted))/4],
	}
	unique := candidates[:0]
	for i, c := range candidates {
		if i == 0 || c != candidates[i-1] {
			unique = append(unique, c)
		}
	}
	return unique
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
