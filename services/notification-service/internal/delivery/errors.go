package delivery

import "errors"

var ErrMalformed = errors.New("malformed booking event")
