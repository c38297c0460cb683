package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/soundboard/internal/app"
	"github.com/ent0n29/soundboard/internal/orchestrator"
	"github.com/ent0n29/soundboard/internal/service"
	"github.com/ent0n29/soundboard/internal/speech"
)

var (
	inputFile string
	voice     string
	mode      string
	speed     float64
	delivery  string
	noConcat  bool
	cast      map[string]string

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT]",
		Short: "Synthesize text, SSML-lite or emotion markup",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpeak(cmd, args, service.Mode(mode))
		},
	}

	sfxCmd = &cobra.Command{
		Use:   "sfx [TEXT]",
		Short: "Synthesize text with [sfx:...] tags spliced in",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpeak(cmd, args, service.ModeSfx)
		},
	}

	dialogueCmd = &cobra.Command{
		Use:   "dialogue [SCRIPT]",
		Short: "Synthesize a multi-speaker dialogue script",
		Args:  cobra.ArbitraryArgs,
		RunE:  runDialogue,
	}

	voicesCmd = &cobra.Command{
		Use:   "voices",
		Short: "List voices, presets, emotions and sound effects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), func(_ context.Context, svc *service.Service) error {
				return printJSON(cmd.OutOrStdout(), svc.Voices())
			})
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{speakCmd, sfxCmd, dialogueCmd} {
		c.Flags().StringVarP(&inputFile, "file", "f", "", "read input from file (- for stdin)")
		c.Flags().Float64Var(&speed, "speed", 1.0, "speaking speed, clamped to [0.5, 2.0]")
		c.Flags().StringVar(&delivery, "delivery", "", "artifact delivery: path or base64 (default from config)")
		c.Flags().BoolVar(&noConcat, "no-concat", false, "return per-chunk artifacts without a joined file")
	}
	speakCmd.Flags().StringVarP(&voice, "voice", "v", "", "voice id or preset name")
	speakCmd.Flags().StringVarP(&mode, "mode", "m", string(service.ModePlain), "plain, ssml, emotion or sfx")
	sfxCmd.Flags().StringVarP(&voice, "voice", "v", "", "voice id or preset name")
	dialogueCmd.Flags().StringToStringVar(&cast, "cast", nil, "speaker=voice assignments")
}

func runSpeak(cmd *cobra.Command, args []string, m service.Mode) error {
	text, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	return withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
		res, err := svc.Speak(ctx, service.SpeakRequest{
			Text:      text,
			Mode:      m,
			Voice:     voice,
			Speed:     speed,
			Delivery:  speech.DeliveryMode(delivery),
			Concat:    concatFlag(cmd),
			ClientKey: "cli",
			OnChunk:   logChunk,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}

func runDialogue(cmd *cobra.Command, args []string) error {
	script, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	return withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
		res, err := svc.SpeakDialogue(ctx, service.DialogueRequest{
			Script:    script,
			Cast:      cast,
			Speed:     speed,
			Delivery:  speech.DeliveryMode(delivery),
			Concat:    concatFlag(cmd),
			ClientKey: "cli",
			OnChunk:   logChunk,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}

func withService(ctx context.Context, fn func(context.Context, *service.Service) error) error {
	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := built.Cleanup(cleanupCtx); err != nil {
			logger.Warn("cleanup failed", "err", err)
		}
	}()
	return fn(ctx, built.Service)
}

func concatFlag(cmd *cobra.Command) *bool {
	if !cmd.Flags().Changed("no-concat") {
		return nil
	}
	v := !noConcat
	return &v
}

func logChunk(ev orchestrator.ChunkEvent) {
	logger.Info("chunk synthesized",
		"job_id", ev.JobID,
		"chunk", fmt.Sprintf("%d/%d", ev.Index+1, ev.Planned),
		"duration_ms", ev.Artifact.DurationMs,
	)
}

// readInput takes the positional args, the --file flag or piped stdin, in that order.
func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	switch inputFile {
	case "":
		if f, ok := stdin.(*os.File); ok {
			if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
				return "", errors.New("no input: pass text as arguments, --file, or pipe it on stdin")
			}
		}
		return readAll(stdin)
	case "-":
		return readAll(stdin)
	default:
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(data), nil
	}
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
