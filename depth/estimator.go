// Package depth defines the Estimator capability that turns an image into a depth map,
// along with the registry of estimator models. Where and how a model runs, including any
// processing device it picks, stays inside the model.
package depth

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/rimage/transform"
	"go.viam.com/depthcloud/utils"
)

// ErrUnknownModel is returned when no estimator is registered under a model name.
var ErrUnknownModel = errors.New("unknown depth estimator model")

// An Estimator produces a depth map aligned pixel for pixel with the given image.
type Estimator interface {
	// Infer estimates the depth of every pixel of img.
	Infer(ctx context.Context, img *rimage.Image) (*rimage.DepthMap, error)

	// Close releases anything the estimator holds.
	Close(ctx context.Context) error
}

// A Validator checks a decoded model config. path names where the config lives so
// errors can point at it.
type Validator interface {
	Validate(path string) error
}

// Registration describes how to build one estimator model.
type Registration struct {
	// AttributeMapConverter decodes raw attributes into the model's typed config.
	AttributeMapConverter func(attributes utils.AttributeMap) (Validator, error)

	// Constructor builds the estimator from the converted config.
	Constructor func(ctx context.Context, conf Validator, logger logging.Logger) (Estimator, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration{}
)

// RegisterEstimator registers an estimator model. It panics if the model is already registered.
func RegisterEstimator(model string, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[model]; old {
		panic(errors.Errorf("trying to register two depth estimators with same model %s", model))
	}
	if reg.AttributeMapConverter == nil || reg.Constructor == nil {
		panic(errors.Errorf("depth estimator %s needs both an attribute converter and a constructor", model))
	}
	registry[model] = reg
}

// DeregisterEstimator removes a model. Only meant for tests.
func DeregisterEstimator(model string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, model)
}

// Lookup returns the registration of a model.
func Lookup(model string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[model]
	return reg, ok
}

// RegisteredModels returns the sorted names of every registered model.
func RegisteredModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := make([]string, 0, len(registry))
	for model := range registry {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// ValidateConfig decodes and validates the attributes of a model without building it.
func ValidateConfig(path, model string, attributes utils.AttributeMap) (Validator, error) {
	reg, ok := Lookup(model)
	if !ok {
		return nil, utils.NewConfigValidationError(path,
			errors.Wrapf(ErrUnknownModel, "%q (registered: %v)", model, RegisteredModels()))
	}
	conf, err := reg.AttributeMapConverter(attributes)
	if err != nil {
		return nil, utils.NewConfigValidationError(path, err)
	}
	if err := conf.Validate(path + ".attributes"); err != nil {
		return nil, err
	}
	return conf, nil
}

// New builds an estimator of the given model from raw attributes.
func New(ctx context.Context, model string, attributes utils.AttributeMap, logger logging.Logger) (Estimator, error) {
	conf, err := ValidateConfig("estimator", model, attributes)
	if err != nil {
		return nil, err
	}
	reg, _ := Lookup(model)
	est, err := reg.Constructor(ctx, conf, logger.Named(model))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build depth estimator %q", model)
	}
	return est, nil
}

// Infer runs the estimator and checks that the depth map it returns is aligned with img.
func Infer(ctx context.Context, est Estimator, img *rimage.Image) (*rimage.DepthMap, error) {
	ctx, span := trace.StartSpan(ctx, "depth::Infer")
	defer span.End()

	if img == nil {
		return nil, errors.New("cannot infer depth without an image")
	}
	dm, err := est.Infer(ctx, img)
	if err != nil {
		return nil, errors.Wrap(err, "depth inference failed")
	}
	if dm == nil {
		return nil, errors.New("depth estimator returned no depth map")
	}
	if dm.Bounds() != img.Bounds() {
		return nil, errors.Wrapf(transform.ErrDimensionMismatch, "Depth(%d,%d) != Color(%d,%d)",
			dm.Width(), dm.Height(), img.Width(), img.Height())
	}
	return dm, nil
}

// ConvertAttributes is a helper for AttributeMapConverter implementations: it decodes the
// attributes into a fresh *T.
func ConvertAttributes[T any, PT interface {
	*T
	Validator
}](attributes utils.AttributeMap) (Validator, error) {
	var conf T
	if err := utils.TransformAttributeMapToStruct(&conf, attributes); err != nil {
		return nil, err
	}
	return PT(&conf), nil
}

// NativeConfig casts a converted config back to the model's type.
func NativeConfig[T any](conf Validator) (T, error) {
	native, ok := conf.(T)
	if !ok {
		var zero T
		return zero, utils.NewUnexpectedTypeError(zero, conf)
	}
	return native, nil
}
