package series_test

import (
	"fmt"

	"github.com/cwbudde/algo-rv/stats/series"
)

func ExampleCalculate() {
	s := series.Calculate([]float64{1, 2, 3})
	fmt.Printf("mean %.2f rms %.2f range %.2f\n", s.Mean, s.RMS, s.Range)
	// Output:
	// mean 2.00 rms 2.16 range 2.00
}
