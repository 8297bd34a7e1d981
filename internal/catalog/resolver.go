// Package catalog resolves sensor requests against feature tables and
// inspects dataset folders.
package catalog

import (
	"sort"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

// Resolution is the outcome of resolving a request batch.
type Resolution struct {
	// AllValid is false when any request matched no table.
	AllValid bool
	// Paths holds the deduplicated matches of every satisfiable request, sorted.
	Paths []string
	// Unresolved lists the requests that matched nothing.
	Unresolved []models.SensorRequest
}

// ResolveDir lists the tables in dir and resolves reqs against them.
func ResolveDir(dir string, reqs []models.SensorRequest) (Resolution, error) {
	files, err := repo.NewFeatureStore(dir).List()
	if err != nil {
		return Resolution{}, err
	}
	return Resolve(files, reqs), nil
}

// Resolve matches reqs against files. An empty batch selects every file.
func Resolve(files []repo.TableFile, reqs []models.SensorRequest) Resolution {
	if len(reqs) == 0 {
		reqs = []models.SensorRequest{models.AllSensors()}
	}
	res := Resolution{AllValid: true}
	seen := map[string]bool{}
	for _, req := range reqs {
		matched := false
		for _, f := range files {
			if !matches(req, f.Key) {
				continue
			}
			matched = true
			if !seen[f.Path] {
				seen[f.Path] = true
				res.Paths = append(res.Paths, f.Path)
			}
		}
		// A global request over an empty directory selects nothing but is not
		// a bad request.
		if !matched && req.Kind != models.RequestAll {
			res.AllValid = false
			res.Unresolved = append(res.Unresolved, req)
		}
	}
	sort.Strings(res.Paths)
	return res
}

func matches(req models.SensorRequest, key models.SensorKey) bool {
	switch req.Kind {
	case models.RequestAll:
		return true
	case models.RequestByType:
		return key.Type == req.Type
	case models.RequestByName:
		return key.Name == req.Name
	case models.RequestExact:
		return key.Name == req.Name && key.Type == req.Type
	default:
		return false
	}
}
