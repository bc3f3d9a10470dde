package bx

import "errors"

var ErrShort = errors.New("bx: buffer too short")
