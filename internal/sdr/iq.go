package sdr

// ConvertIQ converts interleaved unsigned 8-bit I,Q pairs into normalized
// complex samples in [-1, 1]. A trailing odd byte is ignored.
func ConvertIQ(raw []byte) []complex128 {
	samples := make([]complex128, len(raw)/2)
	for i := range samples {
		re := float64(raw[2*i])/127.5 - 1
		im := float64(raw[2*i+1])/127.5 - 1
		samples[i] = complex(re, im)
	}
	return samples
}
