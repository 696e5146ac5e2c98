//go:build !magick

package converter

import (
	"fmt"

	"pdftomanifest/contracts"
)

func newMagickEngine() (Engine, error) {
	return nil, fmt.Errorf("%w: magick (build with -tags magick)", contracts.ErrEngineUnavailable)
}
