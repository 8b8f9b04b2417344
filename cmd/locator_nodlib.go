//go:build nodlib

package main

import (
	"errors"

	"github.com/amirhossein5/facecheck/internal/locator"
)

func newDlibLocator(string) (locator.Locator, func(), error) {
	return nil, nil, errors.New("built without dlib support, set ENROLL_LOCATOR=cascade")
}
