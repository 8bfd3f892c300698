package kv

// Strided models spec.md §9's "(pointer, stride) pair" convention as a
// type-safe Go slice view: Stride == 0 means every logical index reads
// back Values[0] (a single repeated value, the common case for
// "apply this one collection id to every key in the batch"); any
// other stride means one distinct value per logical index. Go slices
// are already homogeneous and contiguous, so the original's arbitrary
// byte-stride generality (used in the source language to interleave
// foreign struct-of-arrays layouts) collapses to this repeat/no-repeat
// distinction once the element type is fixed at compile time.
type Strided[T any] struct {
	Values []T
	Stride int
}

// One builds a Strided that repeats a single value across the batch.
func One[T any](v T) Strided[T] {
	return Strided[T]{Values: []T{v}, Stride: 0}
}

// Many builds a Strided with one distinct value per logical index.
func Many[T any](vs []T) Strided[T] {
	return Strided[T]{Values: vs, Stride: 1}
}

// At returns the logical value at index i. A zero stride with no
// values panics by design: a forbidden configuration must be rejected
// by the caller (validated as ErrInvalidArgument) before At is ever
// called for key strides, per spec.md §4.4 ("A stride of 0 for keys
// is forbidden").
func (s Strided[T]) At(i int) T {
	if s.Stride == 0 {
		return s.Values[0]
	}
	return s.Values[i]
}

// Len reports how many distinct values this view actually holds
// (1 for a repeated stride, len(Values) otherwise).
func (s Strided[T]) Len() int {
	return len(s.Values)
}

// offsets builds an Arrow-convention offset array (N+1 entries, last
// entry equal to the total byte length) from a slice of segment
// lengths.
func offsets(lengths []uint32) []uint32 {
	out := make([]uint32, len(lengths)+1)
	var total uint32
	for i, l := range lengths {
		out[i] = total
		total += l
	}
	out[len(lengths)] = total
	return out
}
