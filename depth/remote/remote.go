// Package remote implements a depth estimator backed by an HTTP inference service. The
// image is posted as a PNG and the service answers with a row-major depth grid.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/depthcloud/depth"
	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/rimage/transform"
	rutils "go.viam.com/depthcloud/utils"
)

// Model is the registered name of the remote estimator.
const Model = "remote"

// Devices the inference service may be asked to run on.
const (
	DeviceAuto = "auto"
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

const defaultTimeout = 2 * time.Minute

// maxResponseBytes bounds the body read from the service.
const maxResponseBytes = 1 << 30

func init() {
	depth.RegisterEstimator(Model, depth.Registration{
		AttributeMapConverter: depth.ConvertAttributes[Config],
		Constructor: func(ctx context.Context, conf depth.Validator, logger logging.Logger) (depth.Estimator, error) {
			newConf, err := depth.NativeConfig[*Config](conf)
			if err != nil {
				return nil, err
			}
			return New(*newConf, logger)
		},
	})
}

// Config is the attributes of a remote estimator.
type Config struct {
	URL     string        `json:"url"`
	Device  string        `json:"device,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.URL == "" {
		return rutils.NewConfigValidationFieldRequiredError(path, "url")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return rutils.NewConfigValidationError(path, errors.Wrap(err, "invalid url"))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return rutils.NewConfigValidationError(path, errors.Errorf("url scheme must be http or https, got %q", u.Scheme))
	}
	switch cfg.Device {
	case "", DeviceAuto, DeviceCUDA, DeviceCPU:
	default:
		return rutils.NewConfigValidationError(path,
			errors.Errorf("device must be one of %q, %q or %q, got %q", DeviceAuto, DeviceCUDA, DeviceCPU, cfg.Device))
	}
	if cfg.Timeout < 0 {
		return rutils.NewConfigValidationError(path, errors.Errorf("timeout cannot be negative, got %v", cfg.Timeout))
	}
	return nil
}

// Response is the body the inference service answers with.
type Response struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Depth  []float64 `json:"depth"`
	Device string    `json:"device,omitempty"`
}

type remoteEstimator struct {
	url    string
	device string
	client *http.Client
	logger logging.Logger
}

// New returns an estimator posting to the configured service.
func New(conf Config, logger logging.Logger) (depth.Estimator, error) {
	timeout := conf.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	device := conf.Device
	if device == "" {
		device = DeviceAuto
	}
	return &remoteEstimator{
		url:    conf.URL,
		device: device,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

func (re *remoteEstimator) Infer(ctx context.Context, img *rimage.Image) (*rimage.DepthMap, error) {
	var body bytes.Buffer
	if err := rimage.EncodeImage(&body, img, ".png"); err != nil {
		return nil, errors.Wrap(err, "cannot encode image")
	}

	reqURL, err := url.Parse(re.url)
	if err != nil {
		return nil, err
	}
	query := reqURL.Query()
	query.Set("device", re.device)
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := re.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "depth service request failed")
	}
	defer utils.UncheckedErrorFunc(resp.Body.Close)

	limited := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(limited, 1024))
		return nil, errors.Errorf("depth service returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	var out Response
	if err := json.NewDecoder(limited).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "cannot decode depth service response")
	}
	re.logger.Debugw("depth service answered", "device", out.Device, "elapsed", time.Since(start))

	if out.Width != img.Width() || out.Height != img.Height() {
		return nil, errors.Wrapf(transform.ErrDimensionMismatch, "depth service returned %dx%d for a %dx%d image",
			out.Width, out.Height, img.Width(), img.Height())
	}
	dm, err := rimage.NewDepthMapFromValues(out.Width, out.Height, out.Depth)
	if err != nil {
		return nil, errors.Wrapf(err, "bad depth service response from %s", re.url)
	}
	return dm, nil
}

func (re *remoteEstimator) Close(ctx context.Context) error {
	re.client.CloseIdleConnections()
	return nil
}
