package usage

import "github.com/shoplens/cartdetect/internal/model"

// DisplayNamer resolves model ids to display names.
type DisplayNamer interface {
	DisplayName(id string) string
}

// Aggregate folds events into per-model totals, models ordered by first
// appearance. Averages round half away from zero.
func Aggregate(events []model.UsageEvent, names DisplayNamer) model.AggregatedUsage {
	agg := model.AggregatedUsage{ModelUsage: []model.ModelUsage{}}
	index := make(map[string]int)

	for _, ev := range events {
		agg.TotalTokens += ev.TotalTokens
		agg.TotalCalls++

		i, ok := index[ev.ModelID]
		if !ok {
			i = len(agg.ModelUsage)
			index[ev.ModelID] = i
			name := ev.ModelID
			if names != nil {
				name = names.DisplayName(ev.ModelID)
			}
			agg.ModelUsage = append(agg.ModelUsage, model.ModelUsage{
				ModelID:   ev.ModelID,
				ModelName: name,
			})
		}
		agg.ModelUsage[i].TotalTokens += ev.TotalTokens
		agg.ModelUsage[i].Count++
	}

	for i := range agg.ModelUsage {
		mu := &agg.ModelUsage[i]
		mu.AverageTokens = roundedAverage(mu.TotalTokens, mu.Count)
	}
	return agg
}

func roundedAverage(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	if total >= 0 {
		return (total + count/2) / count
	}
	return (total - count/2) / count
}
