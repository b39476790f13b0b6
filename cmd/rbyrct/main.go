package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"rbyrct/pkg/config"
	"rbyrct/pkg/phantom"
	"rbyrct/pkg/recon"
	"rbyrct/pkg/visualization"
	"rbyrct/pkg/volume"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "rbyrct.yaml", "Path to YAML configuration file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to the config path and exit")
	method := flag.String("method", "", "Override the reconstruction method (MART or SART)")
	iterations := flag.Int("iterations", 0, "Override the iteration cap")
	outputName := flag.String("output", "volume.raw", "Output volume filename (raw float64, little endian)")
	extractSlices := flag.Bool("extract-slices", false, "Extract and save reconstructed slices as PNG images")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *method != "" {
		cfg.Recon.Method = *method
	}
	if *iterations > 0 {
		cfg.Recon.MaxIterations = *iterations
	}

	fmt.Println("================================")
	fmt.Println("RBYRCT: ITERATIVE RAY-BY-RAY CT RECONSTRUCTION")
	fmt.Println("================================")

	geom, err := cfg.BuildGeometry()
	if err != nil {
		log.Fatalf("Invalid geometry configuration: %v", err)
	}
	grid, err := cfg.BuildGrid()
	if err != nil {
		log.Fatalf("Invalid grid configuration: %v", err)
	}
	reconCfg, err := cfg.ReconConfig()
	if err != nil {
		log.Fatalf("Invalid reconstruction configuration: %v", err)
	}

	// Build the ground-truth phantom and simulate its acquisition
	var truth *volume.Volume
	switch cfg.Phantom.Shape {
	case "disk":
		truth = phantom.Disk(grid, cfg.Phantom.Size, cfg.Phantom.Value)
	case "box":
		half := cfg.Phantom.Size / 2
		truth = phantom.Box(grid, [3]float64{half, half, half}, cfg.Phantom.Value)
	default:
		log.Fatalf("Unknown phantom shape: %q", cfg.Phantom.Shape)
	}

	fmt.Printf("Simulating %d views x %d channels (%s beam)...\n",
		geom.ViewCount(), cfg.Geometry.DetectorChannels, cfg.Geometry.Beam)
	meas, err := phantom.Simulate(geom, truth)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
	if cfg.Phantom.NoiseSigma > 0 {
		phantom.AddNoise(meas, cfg.Phantom.NoiseSigma, cfg.Phantom.DoseFactor, cfg.Phantom.Seed)
		fmt.Printf("Added Gaussian noise (sigma=%g, dose factor=%g)\n",
			cfg.Phantom.NoiseSigma, cfg.Phantom.DoseFactor)
	}

	reconCfg.Reference = truth
	if cfg.Output.Verbose {
		reconCfg.Progress = func(iteration, maxIterations int, residual float64) {
			fmt.Printf("  iteration %d/%d: rms residual %.6g\n", iteration, maxIterations, residual)
		}
	}

	// Run the reconstruction to a terminal state
	fmt.Printf("Starting %s reconstruction on a %dx%d grid...\n",
		cfg.Recon.Method, grid.Nx, grid.Ny)
	startTime := time.Now()
	result, err := recon.Reconstruct(context.Background(), geom, grid, meas, reconCfg)
	processingTime := time.Since(startTime)

	var divErr *recon.DivergenceError
	switch {
	case errors.As(err, &divErr):
		fmt.Printf("\nReconstruction DIVERGED at iteration %d; keeping the last valid volume.\n", divErr.Iteration)
	case err != nil:
		log.Fatalf("Reconstruction failed: %v", err)
	default:
		fmt.Printf("\nReconstruction finished in %.2f seconds (%s after %d iterations)\n",
			processingTime.Seconds(), result.State, result.Iterations)
	}

	if len(result.History) > 0 {
		last := result.History[len(result.History)-1]
		fmt.Printf("\nQuality metrics vs. ground truth:\n")
		fmt.Printf("=================================\n")
		fmt.Printf("RMS residual: %.6g\n", last.Residual)
		if !math.IsNaN(last.SSIM) {
			fmt.Printf("Structural Similarity Index (SSIM): %.3f\n", last.SSIM)
		}
		if !math.IsNaN(last.PSNR) {
			fmt.Printf("Peak Signal-to-Noise Ratio (PSNR): %.2f dB\n", last.PSNR)
		}
	}

	if err := writeVolume(result.Volume, *outputName); err != nil {
		log.Fatalf("Failed to write volume: %v", err)
	}
	fmt.Printf("\nReconstructed volume saved to: %s\n", *outputName)

	// Extract and save slices if requested
	if *extractSlices {
		fmt.Println("\nExtracting reconstructed slices...")
		viewer := visualization.NewViewer(result.Volume)
		axisDir := filepath.Join(cfg.Output.SliceDir, "z")
		fmt.Printf("Saving z-axis slices to: %s\n", axisDir)
		if err := viewer.SaveSliceSequence("z", axisDir); err != nil {
			log.Printf("Warning: Failed to save slices: %v", err)
		}
		fmt.Println("Slice extraction completed!")
	}
}

// writeVolume dumps the voxel buffer as little-endian float64 values, row
// major with x fastest, preceded by the three uint32 axis counts.
func writeVolume(v *volume.Volume, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := []uint32{uint32(v.Grid.Nx), uint32(v.Grid.Ny), uint32(v.Grid.Nz)}
	if err := binary.Write(file, binary.LittleEndian, header); err != nil {
		return err
	}
	return binary.Write(file, binary.LittleEndian, v.Data)
}
