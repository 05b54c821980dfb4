package config

import (
	"errors"
	"strconv"
)

var (
	errMustBePositive          = errors.New("must be positive")
	errMustNotBeNegative       = errors.New("must not be negative")
	errMustNotBeEmpty          = errors.New("must not be empty")
	errOutfileSmallerThanBucket = errors.New("outfile_size_bytes must be at least one bucket")
)

func itoa(n int) string   { return strconv.Itoa(n) }
func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
