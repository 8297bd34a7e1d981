package analysis

import "fmt"

// stratifiedFolds assigns each row a test fold so that every fold holds
// roughly the same class proportions. Rows keep their original order within
// a class; no shuffling is applied.
func stratifiedFolds(y []int, nClasses, k int) []int {
	// Sorted labels dealt round-robin give the per-fold class allocation.
	perClass := make([]int, nClasses)
	for _, v := range y {
		perClass[v]++
	}
	sorted := make([]int, 0, len(y))
	for c, n := range perClass {
		for i := 0; i < n; i++ {
			sorted = append(sorted, c)
		}
	}
	alloc := make([][]int, k)
	for f := range alloc {
		alloc[f] = make([]int, nClasses)
		for i := f; i < len(sorted); i += k {
			alloc[f][sorted[i]]++
		}
	}

	folds := make([]int, len(y))
	next := make([]int, nClasses)
	used := make([]int, nClasses)
	for i, c := range y {
		for used[c] >= alloc[next[c]][c] {
			next[c]++
			used[c] = 0
		}
		folds[i] = next[c]
		used[c]++
	}
	return folds
}

// crossValidate returns the mean test accuracy over k stratified folds.
func crossValidate(newModel func() model, x [][]float64, y []int, nClasses, k int) (float64, error) {
	if len(y) < k {
		return 0, fmt.Errorf("cannot split %d rows into %d folds", len(y), k)
	}
	folds := stratifiedFolds(y, nClasses, k)

	total := 0.0
	for f := 0; f < k; f++ {
		var trainX, testX [][]float64
		var trainY, testY []int
		for i, fold := range folds {
			if fold == f {
				testX = append(testX, x[i])
				testY = append(testY, y[i])
			} else {
				trainX = append(trainX, x[i])
				trainY = append(trainY, y[i])
			}
		}
		if len(testY) == 0 || len(trainY) == 0 {
			return 0, fmt.Errorf("fold %d is empty", f)
		}
		m := newModel()
		if err := m.fit(trainX, trainY, nClasses); err != nil {
			return 0, fmt.Errorf("fold %d: %w", f, err)
		}
		pred := m.predict(testX)
		correct := 0
		for i, p := range pred {
			if p == testY[i] {
				correct++
			}
		}
		total += float64(correct) / float64(len(testY))
	}
	return total / float64(k), nil
}
