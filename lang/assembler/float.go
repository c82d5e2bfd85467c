package assembler

import "math"

func float32ToBits(f float32) uint32 { return math.Float32bits(f) }
