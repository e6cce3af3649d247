package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lorad/internal/comfy"
	"lorad/internal/common/fsutil"
	"lorad/internal/fetcher"
	"lorad/internal/predictor"
	"lorad/pkg/types"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		lorasDir     string
		stagingDir   string
		pgetPath     string
		fetchTimeout int
		verbose      bool
	)

	root := &cobra.Command{
		Use:           "loractl",
		Short:         "Fetch LoRA weights and run workflow predictions from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&lorasDir, "loras-dir", "ComfyUI/models/loras", "Destination directory for fetched LoRA files")
	root.PersistentFlags().StringVar(&stagingDir, "staging-dir", "TEMP_HF", "Staging directory for in-flight downloads")
	root.PersistentFlags().StringVar(&pgetPath, "pget", "pget", "Path of the pget binary")
	root.PersistentFlags().IntVar(&fetchTimeout, "fetch-timeout", 600, "Download timeout in seconds")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	newLogger := func() zerolog.Logger {
		lvl := zerolog.InfoLevel
		if verbose {
			lvl = zerolog.DebugLevel
		}
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
	}

	newFetcher := func(log zerolog.Logger) (*fetcher.Fetcher, error) {
		loras, err := fsutil.ExpandHome(lorasDir)
		if err != nil {
			return nil, err
		}
		staging, err := fsutil.ExpandHome(stagingDir)
		if err != nil {
			return nil, err
		}
		return fetcher.New(fetcher.Options{
			LorasDir:   loras,
			StagingDir: staging,
			Timeout:    time.Duration(fetchTimeout) * time.Second,
			Fast:       fetcher.NewPgetFetcher(pgetPath),
			Hub:        fetcher.NewHubClient(fetcher.HubOptions{CacheDir: staging}),
			Logger:     log,
		}), nil
	}

	fetchCmd := &cobra.Command{
		Use:     "fetch <url>",
		Short:   "Download a LoRA weight file into the loras directory",
		Example: "  loractl fetch https://huggingface.co/org/model/resolve/main/lora.safetensors",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			f, err := newFetcher(log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			filename, err := f.Fetch(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(filename)
			return nil
		},
	}

	var (
		req          types.PredictionRequest
		guidance     float64
		strength     float64
		comfyAddr    string
		workflowPath string
		outputDir    string
		inputDir     string
		comfyTempDir string
	)
	predictCmd := &cobra.Command{
		Use:     "predict",
		Short:   "Run one generation on the workflow server",
		Example: "  loractl predict --prompt 'a lighthouse at dusk' --control-image photo.png",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// flag values carry the defaults, so an explicit 0 survives
			req.GuidanceScale = &guidance
			req.ControlStrength = &strength
			log := newLogger()
			client := comfy.New(comfyAddr, log)
			p := predictor.New(predictor.Options{
				OutputDir:    outputDir,
				InputDir:     inputDir,
				TempDir:      comfyTempDir,
				WorkflowPath: workflowPath,
				Comfy:        client,
				Logger:       log,
			})
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			resp, err := p.Predict(ctx, req)
			if err != nil {
				return err
			}
			for _, out := range resp.Outputs {
				fmt.Println(out)
			}
			log.Info().Int64("seed", resp.Seed).Msg("done")
			return nil
		},
	}
	predictCmd.Flags().StringVar(&comfyAddr, "comfy-addr", "127.0.0.1:8188", "Address of the running generation server")
	predictCmd.Flags().StringVar(&workflowPath, "workflow", "", "Workflow graph template (empty uses the embedded default)")
	predictCmd.Flags().StringVar(&outputDir, "output-dir", "/tmp/outputs", "Directory the generation server writes outputs to")
	predictCmd.Flags().StringVar(&inputDir, "input-dir", "/tmp/inputs", "Directory for staged input images")
	predictCmd.Flags().StringVar(&comfyTempDir, "comfy-temp-dir", "ComfyUI/temp", "Generation server temp output directory")
	predictCmd.Flags().StringVar(&req.Prompt, "prompt", "", "Prompt text")
	predictCmd.Flags().StringVar(&req.NegativePrompt, "negative", "", "Things you do not want to see in your image")
	predictCmd.Flags().Float64Var(&guidance, "guidance", 3.5, "Guidance scale (0-5)")
	predictCmd.Flags().IntVar(&req.Steps, "steps", 28, "Sampler steps (1-50)")
	predictCmd.Flags().StringVar(&req.ControlType, "control-type", "depth", "Control net type: canny|soft_edge|depth")
	predictCmd.Flags().Float64Var(&strength, "control-strength", 0.5, "Control net strength (0-3)")
	predictCmd.Flags().StringVar(&req.ControlImage, "control-image", "", "Image to use with the control net")
	predictCmd.Flags().Float64Var(&req.ImageToImageStrength, "i2i-strength", 0, "Image-to-image strength (0-1)")
	predictCmd.Flags().StringVar(&req.DepthPreprocessor, "depth-preprocessor", "DepthAnything", "Midas|Zoe|DepthAnything|Zoe-DepthAnything")
	predictCmd.Flags().StringVar(&req.SoftEdgePreprocessor, "soft-edge-preprocessor", "HED", "HED|TEED|PiDiNet")
	predictCmd.Flags().BoolVar(&req.ReturnPreprocessedImage, "return-preprocessed", false, "Also return the preprocessed control image")
	predictCmd.Flags().StringVar(&req.OutputFormat, "format", "png", "Output format: png|jpg|webp")
	predictCmd.Flags().IntVar(&req.OutputQuality, "quality", 80, "Output quality for lossy formats (1-100)")
	predictCmd.Flags().Int64Var(&req.Seed, "seed", 0, "Random seed (0 picks one)")
	_ = predictCmd.MarkFlagRequired("control-image")

	root.AddCommand(fetchCmd, predictCmd)
	return root
}
