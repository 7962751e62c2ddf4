package regression

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

type node struct {
	feature   int // -1 for leaves
	threshold float64
	value     float64
	left      int
	right     int
}

type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.feature < 0 {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

type grower struct {
	X      [][]float64
	y      []float64
	params Params
	rng    *rand.Rand
	mtry   int
	tree   *tree
	// scratch
	targets []float64
}

func growTree(X [][]float64, y []float64, idx []int, p Params, rng *rand.Rand) *tree {
	g := &grower{
		X:      X,
		y:      y,
		params: p,
		rng:    rng,
		mtry:   p.featuresPerSplit(len(X[0])),
		tree:   &tree{},
	}
	g.grow(idx, 0)
	return g.tree
}

func (g *grower) leafValue(idx []int) float64 {
	g.targets = g.targets[:0]
	for _, i := range idx {
		g.targets = append(g.targets, g.y[i])
	}
	return stat.Mean(g.targets, nil)
}

// grow appends the subtree for idx and returns its node index.
func (g *grower) grow(idx []int, depth int) int {
	self := len(g.tree.nodes)
	g.tree.nodes = append(g.tree.nodes, node{feature: -1, value: g.leafValue(idx)})

	if len(idx) < g.params.MinSamplesSplit || (g.params.MaxDepth > 0 && depth >= g.params.MaxDepth) {
		return self
	}

	feature, threshold, ok := g.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if g.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.tree.nodes[self] = node{feature: feature, threshold: threshold, left: l, right: r}
	return self
}

// bestSplit maximises the reduction of squared error over mtry random features.
func (g *grower) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += g.y[i]
	}
	parentScore := total * total / float64(n)

	bestFeature, bestThreshold := -1, 0.0
	bestGain := 1e-12
	minLeaf := g.params.MinSamplesLeaf

	order := make([]int, n)
	candidates := g.rng.Perm(len(g.X[0]))[:g.mtry]
	for _, feature := range candidates {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool {
			return g.X[order[a]][feature] < g.X[order[b]][feature]
		})

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += g.y[order[k]]
			nLeft := k + 1
			nRight := n - nLeft
			if nLeft < minLeaf {
				continue
			}
			if nRight < minLeaf {
				break
			}
			current, next := g.X[order[k]][feature], g.X[order[k+1]][feature]
			if current == next {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(nLeft) + rightSum*rightSum/float64(nRight)
			if gain := score - parentScore; gain > bestGain {
				bestGain = gain
				bestFeature = feature
				bestThreshold = current + (next-current)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}
