package vdepth

import (
	"go.viam.com/rdk/resource"
)

var NamespaceFamily = resource.ModelNamespace("erh").WithFamily("vdepth")
