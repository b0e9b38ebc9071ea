// Demonstration harness for the camera motion estimator: runs the estimator
// over a frame directory, a video file, or a pair of images, optionally
// masking foreground objects found by an ONNX detector, and prints the
// recovered warp per frame.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-cmc/cmc"
	"github.com/nvr-ai/go-cmc/detect"
	"github.com/nvr-ai/go-cmc/images"
	"github.com/nvr-ai/go-cmc/util"
)

func main() {
	var (
		frameDir      string
		videoPath     string
		modelName     string
		scale         float64
		grayscale     bool
		align         bool
		alignedDir    string
		ratio         float64
		seed          int
		onnxModel     string
		confidence    float64
		detectClasses bool
	)
	flag.StringVar(&frameDir, "dir", "", "Directory of ordered frame images")
	flag.StringVar(&videoPath, "video", "", "Path to a video file")
	flag.StringVar(&modelName, "model", "euclidean", "Warp model: translation, euclidean, affine, homography")
	flag.Float64Var(&scale, "scale", 0.1, "Preprocessing downsample ratio in (0, 1]")
	flag.BoolVar(&grayscale, "gray", true, "Convert frames to grayscale before feature search")
	flag.BoolVar(&align, "align", false, "Produce aligned copies of each previous frame")
	flag.StringVar(&alignedDir, "aligned-dir", "aligned_frames", "Output directory for aligned frames")
	flag.Float64Var(&ratio, "ratio", 0.7, "Descriptor match ambiguity-rejection ratio")
	flag.IntVar(&seed, "seed", -1, "RANSAC RNG seed; negative leaves the RNG unseeded")
	flag.StringVar(&onnxModel, "onnx-model", "", "Optional ONNX detector model for foreground masking")
	flag.Float64Var(&confidence, "confidence", 0.5, "Detector confidence threshold")
	flag.BoolVar(&detectClasses, "moving-classes-only", true, "Mask only typically-moving classes (person, vehicles)")
	flag.Parse()

	model, ok := cmc.ParseWarpModel(modelName)
	if !ok {
		log.Fatalf("unknown warp model %q", modelName)
	}

	cfg := cmc.DefaultConfig()
	cfg.Model = model
	cfg.Scale = scale
	cfg.Grayscale = grayscale
	cfg.Align = align
	cfg.MatchRatio = float32(ratio)
	cfg.Seed = seed

	estimator, err := cmc.New(cfg)
	if err != nil {
		log.Fatalf("create estimator: %v", err)
	}
	defer estimator.Close()

	var detector *detect.Detector
	if onnxModel != "" {
		detectorCfg := detect.Config{
			ModelPath:           onnxModel,
			InputShape:          image.Point{X: 416, Y: 416},
			ConfidenceThreshold: float32(confidence),
			NMSThreshold:        0.5,
		}
		if detectClasses {
			detectorCfg.RelevantClasses = []string{"person", "car", "truck", "bus", "motorcycle", "bicycle"}
		}
		detector, err = detect.New(detectorCfg)
		if err != nil {
			log.Printf("warning: detector unavailable (%v), continuing without foreground masking", err)
		} else {
			defer detector.Close()
		}
	}

	if align {
		if err := os.MkdirAll(alignedDir, 0o755); err != nil {
			log.Fatalf("create aligned output directory: %v", err)
		}
	}

	switch {
	case frameDir != "" && videoPath != "":
		log.Fatal("specify either -dir or -video, not both")
	case frameDir != "":
		runFrameDirectory(estimator, detector, frameDir, align, alignedDir)
	case videoPath != "":
		runVideo(estimator, detector, videoPath, align, alignedDir)
	case flag.NArg() == 2:
		runPair(estimator, detector, flag.Arg(0), flag.Arg(1))
	default:
		log.Fatal("specify -dir, -video, or two image paths")
	}
}

func runFrameDirectory(estimator *cmc.Estimator, detector *detect.Detector, dir string, align bool, alignedDir string) {
	frames, err := util.LoadFrameSequence(dir)
	if err != nil {
		log.Fatalf("load frames: %v", err)
	}
	fmt.Printf("processing %d frames from %s\n", len(frames), dir)

	for _, frame := range frames {
		img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
		if err != nil || img.Empty() {
			log.Printf("skipping unreadable frame %s", frame.Path)
			continue
		}
		processFrame(estimator, detector, img, frame.Index)
		if align {
			saveAligned(estimator, alignedDir, frame.Index)
		}
		img.Close()
	}
}

func runVideo(estimator *cmc.Estimator, detector *detect.Detector, path string, align bool, alignedDir string) {
	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		log.Fatalf("open video %s: %v", path, err)
	}
	defer capture.Close()

	img := gocv.NewMat()
	defer img.Close()

	for index := 0; ; index++ {
		if ok := capture.Read(&img); !ok {
			fmt.Printf("end of video after %d frames\n", index)
			return
		}
		if img.Empty() {
			continue
		}
		processFrame(estimator, detector, img, index)
		if align {
			saveAligned(estimator, alignedDir, index)
		}
	}
}

func runPair(estimator *cmc.Estimator, detector *detect.Detector, prevPath, currPath string) {
	for i, path := range []string{prevPath, currPath} {
		img := gocv.IMRead(path, gocv.IMReadColor)
		if img.Empty() {
			log.Fatalf("read image %s", path)
		}
		processFrame(estimator, detector, img, i)
		img.Close()
	}
}

func processFrame(estimator *cmc.Estimator, detector *detect.Detector, img gocv.Mat, index int) {
	var boxes []images.Box
	if detector != nil {
		var err error
		boxes, err = detector.Boxes(img)
		if err != nil {
			log.Printf("frame %d: detection failed (%v), estimating without masking", index, err)
		}
	}

	start := time.Now()
	warp, err := estimator.Estimate(img, boxes)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("frame %d: estimation failed: %v", index, err)
		return
	}

	tx, ty := warp.Translation()
	fmt.Printf("[frame %d] warp=%s tx=%.2f ty=%.2f detections=%d took=%.1fms\n",
		index, warp, tx, ty, len(boxes), float64(elapsed.Microseconds())/1000.0)
}

func saveAligned(estimator *cmc.Estimator, dir string, index int) {
	aligned := estimator.Aligned()
	if aligned.Empty() {
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("aligned_%06d.png", index))
	if !gocv.IMWrite(path, aligned) {
		log.Printf("failed to save aligned frame %s", path)
	}
}
