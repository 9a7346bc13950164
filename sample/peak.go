package sample

// Peak is a detected local maximum: its index into a sample's intensity
// array, the intensity value at that index, and its prominence (the
// value's height above the higher of its two bounding valleys).
type Peak struct {
	Index      int
	Value      float64
	Prominence float64
}
