package imageprep

import "errors"

// ErrMalformedImage is returned when the uploaded bytes cannot be decoded as an image.
var ErrMalformedImage = errors.New("malformed image")
