// Package register registers all built-in depth estimator models.
package register

import (
	// register depth estimators.
	_ "go.viam.com/depthcloud/depth/file"
	_ "go.viam.com/depthcloud/depth/luminance"
	_ "go.viam.com/depthcloud/depth/remote"
)
