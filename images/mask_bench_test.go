package images

import "testing"

func BenchmarkExclusionMaskBytes(b *testing.B) {
	detections := []Box{
		{X1: 100, Y1: 100, X2: 300, Y2: 400},
		{X1: 500, Y1: 200, X2: 700, Y2: 600},
		{X1: 900, Y1: 50, X2: 1100, Y2: 350},
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ExclusionMaskBytes(720, 1280, 1, 1, detections)
	}
}
