package pixel

import "testing"

func benchmarkEncode(b *testing.B, d BitDepth) {
	data := randomBytes(3*1<<20, 1)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Encode(data, d); err != nil {
			b.Fatalf("Encode failed: %v", err)
		}
	}
}

func benchmarkDecode(b *testing.B, d BitDepth) {
	pixels, err := Encode(randomBytes(3*1<<20, 1), d)
	if err != nil {
		b.Fatalf("Encode failed: %v", err)
	}
	b.SetBytes(int64(len(pixels)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(pixels, d); err != nil {
			b.Fatalf("Decode failed: %v", err)
		}
	}
}

func BenchmarkEncode_Depth1(b *testing.B) { benchmarkEncode(b, Depth1) }
func BenchmarkEncode_Depth2(b *testing.B) { benchmarkEncode(b, Depth2) }
func BenchmarkEncode_Depth3(b *testing.B) { benchmarkEncode(b, Depth3) }
func BenchmarkDecode_Depth1(b *testing.B) { benchmarkDecode(b, Depth1) }
func BenchmarkDecode_Depth2(b *testing.B) { benchmarkDecode(b, Depth2) }
func BenchmarkDecode_Depth3(b *testing.B) { benchmarkDecode(b, Depth3) }
