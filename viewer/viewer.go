// Package viewer serves an interactive 3D view of a point cloud over HTTP. The page is an
// ECharts 3D scatter plot; keys on the page toggle the background (K), save the cloud (S)
// and close the viewer (Q).
package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/pointcloud"
)

// Background colors the page switches between.
var (
	DarkBackground  = colorful.Color{R: 0.1, G: 0.1, B: 0.1}
	LightBackground = colorful.Color{R: 1, G: 1, B: 1}
)

const chartID = "pointcloud"

// Options controls a Viewer. Zero values select the defaults.
type Options struct {
	// Address is where Run listens, e.g. "localhost:8090".
	Address string
	// MaxPoints bounds how many points are sent to the page.
	MaxPoints int
	// VoxelSize, when positive, merges points per voxel before MaxPoints applies.
	VoxelSize float64
	// SavePath is where the S key writes the full cloud.
	SavePath  string
	Title     string
	PointSize float64
}

func (o Options) withDefaults() Options {
	if o.Address == "" {
		o.Address = "localhost:8090"
	}
	if o.MaxPoints == 0 {
		o.MaxPoints = 100000
	}
	if o.SavePath == "" {
		o.SavePath = "output_point_cloud.ply"
	}
	if o.Title == "" {
		o.Title = "3D Point Cloud"
	}
	if o.PointSize == 0 {
		o.PointSize = 1.5
	}
	return o
}

// Viewer shows one point cloud until it is closed.
type Viewer struct {
	cloud   pointcloud.PointCloud
	shown   pointcloud.PointCloud
	options Options
	logger  logging.Logger

	mu   sync.Mutex
	dark bool

	closeOnce sync.Once
	done      chan struct{}
}

// New prepares a viewer for cloud. The points shown are voxel downsampled and decimated per
// options; saving always writes the full cloud.
func New(cloud pointcloud.PointCloud, options Options, logger logging.Logger) (*Viewer, error) {
	if cloud == nil {
		return nil, errors.New("viewer needs a point cloud")
	}
	options = options.withDefaults()
	if options.MaxPoints < 0 {
		return nil, errors.Errorf("max points cannot be negative, got %d", options.MaxPoints)
	}
	shown := cloud
	var err error
	if options.VoxelSize > 0 {
		if shown, err = pointcloud.VoxelDownsample(shown, options.VoxelSize); err != nil {
			return nil, err
		}
	}
	if shown, err = pointcloud.Decimate(shown, options.MaxPoints); err != nil {
		return nil, err
	}
	if shown.Size() < cloud.Size() {
		logger.Infow("reduced point cloud for display", "points", cloud.Size(), "shown", shown.Size())
	}
	return &Viewer{
		cloud:   cloud,
		shown:   shown,
		options: options,
		logger:  logger,
		dark:    true,
		done:    make(chan struct{}),
	}, nil
}

// Background returns the current page background.
func (v *Viewer) Background() colorful.Color {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dark {
		return DarkBackground
	}
	return LightBackground
}

// ToggleBackground switches between the dark and light background and returns the new one.
func (v *Viewer) ToggleBackground() colorful.Color {
	v.mu.Lock()
	v.dark = !v.dark
	v.mu.Unlock()
	return v.Background()
}

// Save writes the full cloud to the configured save path.
func (v *Viewer) Save() (string, error) {
	if err := pointcloud.WriteToFile(v.cloud, v.options.SavePath); err != nil {
		return "", errors.Wrapf(err, "cannot save point cloud to %q", v.options.SavePath)
	}
	v.logger.Infow("saved point cloud", "path", v.options.SavePath, "points", v.cloud.Size())
	return v.options.SavePath, nil
}

// Close closes the viewer, releasing Run.
func (v *Viewer) Close() {
	v.closeOnce.Do(func() { close(v.done) })
}

// Done is closed once the viewer is closed.
func (v *Viewer) Done() <-chan struct{} {
	return v.done
}

// Handler returns the viewer's routes.
func (v *Viewer) Handler() http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/"), v.handlePage)
	mux.HandleFunc(pat.Post("/background"), v.handleBackground)
	mux.HandleFunc(pat.Post("/save"), v.handleSave)
	mux.HandleFunc(pat.Post("/close"), v.handleClose)
	return mux
}

// Run serves the viewer on the configured address until it is closed or ctx is done.
// Either way of stopping is a clean return.
func (v *Viewer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", v.options.Address)
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %q", v.options.Address)
	}
	return v.Serve(ctx, listener)
}

// Serve is Run on an existing listener. The listener is closed on return.
func (v *Viewer) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           v.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	utils.PanicCapturingGo(func() {
		err := httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	})
	v.logger.Infow("serving point cloud viewer", "url", fmt.Sprintf("http://%s", listener.Addr()),
		"points", v.shown.Size())
	v.logger.Info("Press 'K' to toggle background color, 'S' to save point cloud, 'Q' to close")

	select {
	case <-ctx.Done():
	case <-v.done:
	case err := <-serveErr:
		if err == nil {
			err = errors.New("viewer server stopped unexpectedly")
		}
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		v.logger.Errorw("error shutting down viewer", "error", shutdownErr)
	}
	return <-serveErr
}

func (v *Viewer) handlePage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := v.Chart().Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (v *Viewer) handleBackground(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"background": v.ToggleBackground().Hex()})
}

func (v *Viewer) handleSave(w http.ResponseWriter, r *http.Request) {
	path, err := v.Save()
	if err != nil {
		v.logger.Errorw("save failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (v *Viewer) handleClose(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
	v.Close()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// keyHandlers wires the page keys to the viewer endpoints.
const keyHandlers = `
document.addEventListener('keydown', function (e) {
  var key = e.key.toLowerCase();
  if (key === 'k') {
    fetch('background', {method: 'POST'}).then(function (r) { return r.json(); }).then(function (b) {
      document.body.style.backgroundColor = b.background;
      %MY_ECHARTS%.setOption({backgroundColor: b.background});
    });
  } else if (key === 's') {
    fetch('save', {method: 'POST'}).then(function (r) { return r.json(); }).then(function (b) {
      document.title = b.path ? 'saved ' + b.path : 'save failed';
    });
  } else if (key === 'q') {
    fetch('close', {method: 'POST'}).then(function () { document.body.innerHTML = '<p>viewer closed</p>'; });
  }
});
`

// Chart builds the 3D scatter chart of the displayed points, each in its own color.
func (v *Viewer) Chart() *charts.Scatter3D {
	background := v.Background().Hex()
	data := make([]opts.Chart3DData, 0, v.shown.Size())
	v.shown.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		item := opts.Chart3DData{Value: []interface{}{p.X, p.Y, p.Z}}
		if d != nil && d.HasColor() {
			r, g, b := d.RGB255()
			item.ItemStyle = &opts.ItemStyle{Color: fmt.Sprintf("#%02x%02x%02x", r, g, b)}
		}
		data = append(data, item)
		return true
	})

	meta := v.shown.MetaData()
	scatter := charts.NewScatter3D()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       v.options.Title,
			Width:           "1200px",
			Height:          "800px",
			BackgroundColor: background,
			ChartID:         chartID,
			Theme:           "dark",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    v.options.Title,
			Subtitle: fmt.Sprintf("%d of %d points", v.shown.Size(), v.cloud.Size()),
		}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "X", Min: meta.MinX, Max: meta.MaxX}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Y", Min: meta.MinY, Max: meta.MaxY}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Z", Min: meta.MinZ, Max: meta.MaxZ}),
		charts.WithGrid3DOpts(opts.Grid3D{}),
	)
	scatter.AddSeries("points", data, charts.WithSeriesOpts(func(s *charts.SingleSeries) {
		s.SymbolSize = v.options.PointSize
	}))
	scatter.AddJSFuncStrs(types.FuncStr(keyHandlers))
	return scatter
}
