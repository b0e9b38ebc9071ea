// Package detect provides an optional ONNX object detector (via the OpenCV
// DNN module) for the demonstration pipeline. It supplies the foreground
// bounding boxes the motion estimator excludes from its background search;
// the estimation core itself only consumes boxes and has no dependency on
// this package.
package detect

import (
	"image"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-cmc/images"
)

// Config for the ONNX detector.
type Config struct {
	// ModelPath locates the ONNX model file.
	ModelPath string
	// InputShape is the model's expected input size.
	InputShape image.Point
	// ConfidenceThreshold discards detections below this score.
	ConfidenceThreshold float32
	// NMSThreshold is the IoU above which overlapping detections are
	// suppressed.
	NMSThreshold float32
	// RelevantClasses limits reported detections to these class names;
	// empty means all classes.
	RelevantClasses []string
}

// Validate rejects configurations the detector cannot run with.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path is required")
	}
	if c.InputShape.X <= 0 || c.InputShape.Y <= 0 {
		return errors.Errorf("invalid input shape %dx%d", c.InputShape.X, c.InputShape.Y)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.Errorf("invalid confidence threshold %f", c.ConfidenceThreshold)
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		return errors.Errorf("invalid NMS threshold %f", c.NMSThreshold)
	}
	return nil
}

// Detection is one detected foreground object.
type Detection struct {
	Box       images.Box
	Score     float32
	ClassID   int
	ClassName string
}

// Detector runs YOLO-style ONNX models through gocv.ReadNet.
type Detector struct {
	cfg      Config
	relevant map[string]bool
	net      gocv.Net
}

// New loads the model and prepares the network. Fails fast on a missing or
// unreadable model file.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "detector config")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model file %s", cfg.ModelPath)
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, errors.Errorf("failed to load ONNX model %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendOpenCV)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	relevant := make(map[string]bool, len(cfg.RelevantClasses))
	for _, name := range cfg.RelevantClasses {
		relevant[name] = true
	}

	return &Detector{cfg: cfg, relevant: relevant, net: net}, nil
}

// Detect runs inference on the frame and returns the surviving detections in
// full-resolution coordinates.
func (d *Detector) Detect(img gocv.Mat) ([]Detection, error) {
	if img.Empty() {
		return nil, errors.New("empty frame")
	}

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, d.cfg.InputShape, 0, 0, gocv.InterpolationLinear)
	blob := gocv.BlobFromImage(resized, 1.0/255.0, d.cfg.InputShape, gocv.NewScalar(0, 0, 0, 0), true, false)
	resized.Close()
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	size := img.Size()
	detections := d.postprocess(output, image.Point{X: size[1], Y: size[0]})
	return d.suppress(detections), nil
}

// Boxes is a convenience wrapper for the motion-compensation pipeline: the
// detected foreground boxes, with class metadata dropped.
func (d *Detector) Boxes(img gocv.Mat) ([]images.Box, error) {
	detections, err := d.Detect(img)
	if err != nil {
		return nil, err
	}
	boxes := make([]images.Box, len(detections))
	for i, det := range detections {
		boxes[i] = det.Box
	}
	return boxes, nil
}

// postprocess decodes YOLO rows: [cx, cy, w, h, objectness, class scores...],
// with box coordinates normalized to the input shape.
func (d *Detector) postprocess(output gocv.Mat, original image.Point) []Detection {
	var detections []Detection

	rows := output.Rows()
	cols := output.Cols()
	for i := 0; i < rows; i++ {
		objectness := output.GetFloatAt(i, 4)
		if objectness < d.cfg.ConfidenceThreshold {
			continue
		}

		classID := 0
		maxScore := float32(0)
		for j := 5; j < cols; j++ {
			if score := output.GetFloatAt(i, j); score > maxScore {
				maxScore = score
				classID = j - 5
			}
		}
		score := objectness * maxScore
		if score < d.cfg.ConfidenceThreshold {
			continue
		}

		className := ClassName(classID)
		if len(d.relevant) > 0 && !d.relevant[className] {
			continue
		}

		cx := output.GetFloatAt(i, 0) * float32(original.X)
		cy := output.GetFloatAt(i, 1) * float32(original.Y)
		w := output.GetFloatAt(i, 2) * float32(original.X)
		h := output.GetFloatAt(i, 3) * float32(original.Y)

		box := images.Box{
			X1: max(cx-w/2, 0),
			Y1: max(cy-h/2, 0),
			X2: min(cx+w/2, float32(original.X)),
			Y2: min(cy+h/2, float32(original.Y)),
		}

		detections = append(detections, Detection{
			Box:       box,
			Score:     score,
			ClassID:   classID,
			ClassName: className,
		})
	}

	return detections
}

// suppress applies non-maximum suppression, keeping the highest-scoring box
// among any overlapping group.
func (d *Detector) suppress(detections []Detection) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	var kept []Detection
	suppressed := make([]bool, len(detections))
	for i := range detections {
		if suppressed[i] {
			continue
		}
		kept = append(kept, detections[i])
		for j := i + 1; j < len(detections); j++ {
			if suppressed[j] {
				continue
			}
			if detections[i].Box.IoU(detections[j].Box) > d.cfg.NMSThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

// Close releases the network.
func (d *Detector) Close() error {
	return d.net.Close()
}
