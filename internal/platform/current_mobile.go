//go:build android || ios

package platform

// Current returns the variant this binary was built for.
func Current() Variant { return Mobile }
