// Command vdec plays and inspects media files with the vdec decoder.
//
// It decodes into host-memory images on the software device and drives
// audio through the software mixer, so it runs without a GPU or audio
// hardware. It is useful for checking that a file decodes, how the
// decoder paces itself and how many frames a given presentation rate
// drops.
package main

import (
	"os"

	"github.com/gogpu/vdec/cmd/vdec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
