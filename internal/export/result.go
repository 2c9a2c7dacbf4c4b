package export

import (
	"fmt"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

// FromResult splits a trajectory into one series per state and control
// component. names labels the states; missing names fall back to x0, x1...
func FromResult(result *dynamo.Result, names []string) []Series {
	var series []Series
	if len(result.States) > 0 {
		for i := range result.States[0] {
			s := Series{Name: fmt.Sprintf("x%d", i), Times: result.Times[:len(result.States)]}
			if i < len(names) {
				s.Name = names[i]
			}
			s.Values = make([]float64, len(result.States))
			for k, x := range result.States {
				s.Values[k] = x[i]
			}
			series = append(series, s)
		}
	}
	if len(result.Controls) > 0 {
		for j := range result.Controls[0] {
			s := Series{Name: fmt.Sprintf("u%d", j), Times: result.Times[:len(result.Controls)]}
			s.Values = make([]float64, len(result.Controls))
			for k, u := range result.Controls {
				s.Values[k] = u[j]
			}
			series = append(series, s)
		}
	}
	return series
}
