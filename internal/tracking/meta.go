package tracking

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/askanna-io/askanna-core/internal/models"
)

// observation is the shape shared by metric and variable rows for meta
// computation.
type observation struct {
	Name       string              `json:"name"`
	Value      any                 `json:"value"`
	Type       string              `json:"type"`
	Labels     []models.ValueLabel `json:"label,omitempty"`
	RecordedAt time.Time           `json:"created_at"`
}

// computeMeta aggregates a run's observation collection: row count, the byte
// size of the canonical JSON serialization, unique names with merged types
// and unique label names.
func computeMeta(rows []observation) (*models.ObservationMeta, error) {
	sorted := make([]observation, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].RecordedAt.Equal(sorted[j].RecordedAt) {
			return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
		}
		return sorted[i].Name < sorted[j].Name
	})

	serialized, err := json.Marshal(sorted)
	if err != nil {
		return nil, err
	}

	meta := &models.ObservationMeta{
		Count: len(rows),
		Size:  len(serialized),
	}

	typesByName := map[string]map[string]struct{}{}
	countByName := map[string]int{}
	var nameOrder []string
	for _, row := range sorted {
		if _, seen := typesByName[row.Name]; !seen {
			typesByName[row.Name] = map[string]struct{}{}
			nameOrder = append(nameOrder, row.Name)
		}
		typesByName[row.Name][row.Type] = struct{}{}
		countByName[row.Name]++
	}
	sort.Strings(nameOrder)
	for _, name := range nameOrder {
		meta.Names = append(meta.Names, models.ObservedName{
			Name:  name,
			Type:  mergeTypes(typesByName[name]),
			Count: countByName[name],
		})
	}

	labelTypes := map[string]string{}
	var labelOrder []string
	for _, row := range sorted {
		for _, label := range row.Labels {
			if _, seen := labelTypes[label.Name]; !seen {
				labelTypes[label.Name] = label.Type
				labelOrder = append(labelOrder, label.Name)
			}
		}
	}
	sort.Strings(labelOrder)
	for _, name := range labelOrder {
		meta.LabelNames = append(meta.LabelNames, models.ObservedLabel{
			Name: name,
			Type: labelTypes[name],
		})
	}

	return meta, nil
}

// mergeTypes reduces the set of types observed for one name: a single type
// stands, integer mixed with float widens to float, anything else mixed
// becomes "mixed".
func mergeTypes(types map[string]struct{}) string {
	if len(types) == 1 {
		for t := range types {
			return t
		}
	}
	numericOnly := true
	for t := range types {
		if t != "integer" && t != "float" {
			numericOnly = false
			break
		}
	}
	if numericOnly {
		return "float"
	}
	return "mixed"
}
