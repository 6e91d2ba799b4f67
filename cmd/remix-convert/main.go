package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	remix "github.com/Hemry81/remix-pipeline"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	output          string
	outputDir       string
	manifest        string
	settingsPath    string
	report          string
	compressor      string
	interpolation   string
	workers         int
	convertTextures bool
	autoBlend       bool
	externalRefs    bool
	binary          bool
	generateUVs     bool
	gpu             bool
	verbose         bool
}

func rootCommand() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "remix-convert",
		Short:         "Convert USD/glTF scenes and materials into renderer mod layers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flags.verbose {
				level = slog.LevelDebug
			}
			remix.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&flags.settingsPath, "settings", "remix-convert.toml", "settings file")

	root.AddCommand(convertCommand(flags), watchCommand(flags))
	return root
}

func addConvertFlags(cmd *cobra.Command, flags *cliFlags) {
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output layer path (default: <input>_remix.usda)")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "output directory (default: input's directory)")
	cmd.Flags().StringVar(&flags.manifest, "manifest", "", "mod.usda to register the output layer into")
	cmd.Flags().StringVar(&flags.report, "report", "", "write a JSON conversion report here")
	cmd.Flags().StringVar(&flags.compressor, "compressor", "", "texture compressor executable")
	cmd.Flags().StringVar(&flags.interpolation, "interpolation", "faceVarying", "primvar interpolation: faceVarying, vertex, or none")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "max concurrent texture conversions")
	cmd.Flags().BoolVar(&flags.convertTextures, "convert-textures", true, "run the texture compressor")
	cmd.Flags().BoolVar(&flags.autoBlend, "auto-blend", false, "enable alpha blending when the diffuse texture has an alpha channel")
	cmd.Flags().BoolVar(&flags.externalRefs, "external-refs", false, "keep prototype references external")
	cmd.Flags().BoolVar(&flags.binary, "binary", false, "request binary output (currently downgraded to text)")
	cmd.Flags().BoolVar(&flags.generateUVs, "generate-uvs", false, "author fallback UVs on prototypes missing them")
	cmd.Flags().BoolVar(&flags.gpu, "gpu", false, "enable CUDA compression")
}

func (flags *cliFlags) options(input string) (remix.ConvertOptions, error) {
	settings, err := remix.LoadSettings(flags.settingsPath)
	if err != nil {
		return remix.ConvertOptions{}, err
	}
	if !flags.convertTextures {
		settings.ConvertTextures = false
	}

	opts := remix.ConvertOptions{
		InputPath:       input,
		OutputPath:      flags.output,
		OutputDir:       flags.outputDir,
		ManifestPath:    flags.manifest,
		ReportPath:      flags.report,
		CompressorPath:  flags.compressor,
		Interpolation:   flags.interpolation,
		Workers:         flags.workers,
		ConvertTextures: flags.convertTextures && settings.ConvertTextures,
		AutoBlendAlpha:  flags.autoBlend || settings.AutoBlendAlpha,
		ExternalRefs:    flags.externalRefs,
		Binary:          flags.binary,
		GenerateUVs:     flags.generateUVs,
		UseGPU:          flags.gpu,
	}
	return settings.Apply(opts), nil
}

func convertCommand(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <scene>",
		Short: "Convert one scene into a material override layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(args[0])
			if err != nil {
				return err
			}
			report, err := remix.Convert(signalContext(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "converted %d material(s), %d instance group(s) -> %s\n",
				len(report.Materials), report.InstanceGroups, report.Output)
			return nil
		},
	}
	addConvertFlags(cmd, flags)
	return cmd
}

func watchCommand(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <scene>",
		Short: "Re-convert whenever the scene file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(args[0])
			if err != nil {
				return err
			}
			watch := remix.NewWatcher(opts)
			err = watch.Run(signalContext())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	addConvertFlags(cmd, flags)
	return cmd
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}
