//go:build !nodlib

package main

import (
	"github.com/amirhossein5/facecheck/internal/locator"
	"github.com/amirhossein5/facecheck/internal/locator/dlib"
)

func newDlibLocator(modelsDir string) (locator.Locator, func(), error) {
	l, err := dlib.New(modelsDir)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Close, nil
}
