//go:build !libpostal

package external

// ExtractWithLibpostal always fails when the binary was built without the
// libpostal tag.
func ExtractWithLibpostal(raw string) (LP, error) {
	return LP{}, ErrLibpostalUnavailable
}
