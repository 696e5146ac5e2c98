//go:build !vips

package converter

import (
	"fmt"

	"pdftomanifest/contracts"
)

func newVipsEngine() (Engine, error) {
	return nil, fmt.Errorf("%w: vips (build with -tags vips)", contracts.ErrEngineUnavailable)
}
