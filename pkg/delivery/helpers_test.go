package delivery

import dto "github.com/prometheus/client_model/go"

// sumFamily adds up every counter sample in mf.
func sumFamily(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}
