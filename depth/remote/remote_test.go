package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/depthcloud/depth"
	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/rimage/transform"
	"go.viam.com/depthcloud/utils"
)

// newDepthServer answers every request with a depth grid where depth grows with x. It
// reports the device it was asked for.
func newDepthServer(t *testing.T, widthDelta int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "image/png" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		img, err := rimage.DecodeImage(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		width := img.Width() + widthDelta
		resp := Response{Width: width, Height: img.Height(), Device: r.URL.Query().Get("device")}
		for y := 0; y < img.Height(); y++ {
			for x := 0; x < width; x++ {
				resp.Depth = append(resp.Depth, float64(x+1))
			}
		}
		w.Header().Set("Content-Type", "application/json")
		test.That(t, json.NewEncoder(w).Encode(resp), test.ShouldBeNil)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConfigValidate(t *testing.T) {
	err := (&Config{}).Validate("p")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"url" is required`)
	test.That(t, (&Config{URL: "ftp://host"}).Validate("p"), test.ShouldNotBeNil)
	test.That(t, (&Config{URL: "http://host", Device: "tpu"}).Validate("p"), test.ShouldNotBeNil)
	test.That(t, (&Config{URL: "http://host", Timeout: -time.Second}).Validate("p"), test.ShouldNotBeNil)
	test.That(t, (&Config{URL: "http://host", Device: DeviceCUDA}).Validate("p"), test.ShouldBeNil)
}

func TestRemoteEstimator(t *testing.T) {
	ctx := context.Background()
	srv := newDepthServer(t, 0)

	est, err := depth.New(ctx, Model, utils.AttributeMap{"url": srv.URL, "device": "cpu", "timeout": "5s"},
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, est.Close(ctx), test.ShouldBeNil) }()

	dm, err := depth.Infer(ctx, est, rimage.NewImage(3, 2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.Values(), test.ShouldResemble, []float64{1, 2, 3, 1, 2, 3})
}

func TestRemoteEstimatorErrors(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	mismatched := newDepthServer(t, 1)
	est, err := New(Config{URL: mismatched.URL}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = est.Infer(ctx, rimage.NewImage(3, 2))
	test.That(t, errors.Is(err, transform.ErrDimensionMismatch), test.ShouldBeTrue)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer failing.Close()
	est, err = New(Config{URL: failing.URL}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = est.Infer(ctx, rimage.NewImage(3, 2))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "model exploded")

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer garbage.Close()
	est, err = New(Config{URL: garbage.URL}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = est.Infer(ctx, rimage.NewImage(3, 2))
	test.That(t, err, test.ShouldNotBeNil)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	est, err = New(Config{URL: newDepthServer(t, 0).URL}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = est.Infer(cancelled, rimage.NewImage(3, 2))
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
