package main

import (
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"

	"github.com/erh/vdepth/depthcamera"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: camera.API, Model: depthcamera.Model},
	)
}
