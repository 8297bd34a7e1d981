package analysis

import (
	"math/rand"
	"sort"
)

// treeNode is a leaf when feature < 0.
type treeNode struct {
	feature     int
	threshold   float64
	left, right int
	dist        []float64
}

// cartTree is a CART classifier grown with the Gini criterion until leaves
// are pure or unsplittable.
type cartTree struct {
	// maxFeatures is the number of candidate features per split; 0 means all.
	maxFeatures int
	rng         *rand.Rand

	nClasses    int
	nodes       []treeNode
	importances []float64
}

func newCARTTree(maxFeatures int, seed int64) *cartTree {
	return &cartTree{maxFeatures: maxFeatures, rng: rand.New(rand.NewSource(seed))}
}

// fit grows the tree on the rows listed in idx. idx may repeat rows, which
// weights them as bootstrap draws do.
func (t *cartTree) fit(x [][]float64, y []int, nClasses int, idx []int) {
	t.nClasses = nClasses
	t.nodes = t.nodes[:0]
	nFeatures := 0
	if len(x) > 0 {
		nFeatures = len(x[0])
	}
	t.importances = make([]float64, nFeatures)
	if len(idx) == 0 {
		t.nodes = append(t.nodes, treeNode{feature: -1, dist: make([]float64, nClasses)})
		return
	}
	b := &treeBuilder{tree: t, x: x, y: y, total: float64(len(idx)), features: make([]int, nFeatures)}
	for i := range b.features {
		b.features[i] = i
	}
	b.grow(append([]int(nil), idx...))
	normalize(t.importances)
}

func (t *cartTree) proba(row []float64) []float64 {
	n := 0
	for t.nodes[n].feature >= 0 {
		node := t.nodes[n]
		if row[node.feature] <= node.threshold {
			n = node.left
		} else {
			n = node.right
		}
	}
	return t.nodes[n].dist
}

type treeBuilder struct {
	tree     *cartTree
	x        [][]float64
	y        []int
	total    float64
	features []int
}

type split struct {
	feature   int
	threshold float64
	pos       int
	impurity  float64
}

// grow builds the subtree over idx and returns its node index.
func (b *treeBuilder) grow(idx []int) int {
	t := b.tree
	counts := make([]float64, t.nClasses)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	n := float64(len(idx))
	impurity := gini(counts, n)

	id := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{feature: -1, dist: distribution(counts, n)})
	if impurity == 0 || len(idx) < 2 {
		return id
	}

	best, ok := b.bestSplit(idx, counts, impurity)
	if !ok {
		return id
	}

	sortByFeature(b.x, idx, best.feature)
	left := append([]int(nil), idx[:best.pos]...)
	right := append([]int(nil), idx[best.pos:]...)
	t.importances[best.feature] += (n*impurity - n*best.impurity) / b.total

	l := b.grow(left)
	r := b.grow(right)
	t.nodes[id].feature = best.feature
	t.nodes[id].threshold = best.threshold
	t.nodes[id].left = l
	t.nodes[id].right = r
	return id
}

// bestSplit draws candidate features in random order. Features constant over
// idx do not count toward maxFeatures.
func (b *treeBuilder) bestSplit(idx []int, counts []float64, parent float64) (split, bool) {
	t := b.tree
	t.rng.Shuffle(len(b.features), func(i, j int) { b.features[i], b.features[j] = b.features[j], b.features[i] })
	limit := t.maxFeatures
	if limit <= 0 || limit > len(b.features) {
		limit = len(b.features)
	}

	best := split{impurity: parent}
	found := false
	leftCounts := make([]float64, t.nClasses)
	rightCounts := make([]float64, t.nClasses)
	n := float64(len(idx))
	visited := 0
	for _, f := range b.features {
		if visited >= limit && found {
			break
		}
		sortByFeature(b.x, idx, f)
		if b.x[idx[0]][f] == b.x[idx[len(idx)-1]][f] {
			continue
		}
		visited++
		for c := range leftCounts {
			leftCounts[c] = 0
			rightCounts[c] = counts[c]
		}
		for pos := 1; pos < len(idx); pos++ {
			cls := b.y[idx[pos-1]]
			leftCounts[cls]++
			rightCounts[cls]--
			lo, hi := b.x[idx[pos-1]][f], b.x[idx[pos]][f]
			if lo == hi {
				continue
			}
			nl := float64(pos)
			nr := n - nl
			imp := (nl*gini(leftCounts, nl) + nr*gini(rightCounts, nr)) / n
			if imp < best.impurity || !found {
				best = split{feature: f, threshold: lo + (hi-lo)/2, pos: pos, impurity: imp}
				found = true
			}
		}
	}
	return best, found
}

func sortByFeature(x [][]float64, idx []int, f int) {
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]][f] < x[idx[b]][f] })
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / n
		sum += p * p
	}
	return 1 - sum
}

func distribution(counts []float64, n float64) []float64 {
	d := make([]float64, len(counts))
	if n == 0 {
		return d
	}
	for i, c := range counts {
		d[i] = c / n
	}
	return d
}

// normalize scales v to sum to 1 in place, leaving an all-zero vector untouched.
func normalize(v []float64) {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}
