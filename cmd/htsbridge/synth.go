package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nadzzz/htsbridge/internal/dispatch"
	grpctransport "github.com/nadzzz/htsbridge/internal/transport/grpc"
	"github.com/nadzzz/htsbridge/internal/utterance"
)

var synthFlags struct {
	voice      string
	labelFile  string
	output     string
	server     string
	sampleRate int
	pcm        bool
}

var synthCmd = &cobra.Command{
	Use:   "synth [flags] PHONE...",
	Short: "Synthesize one utterance and write the audio to a file",
	Long: `Synthesize one utterance from a label file and its phone sequence.

Without --server the engine configured in the config file is used in-process.
With --server the request is sent to a running daemon over gRPC.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &utterance.Request{
			Voice:      synthFlags.voice,
			Segments:   args,
			LabelFile:  synthFlags.labelFile,
			SampleRate: synthFlags.sampleRate,
			Encoding:   utterance.EncodingWAV,
		}
		if synthFlags.pcm {
			req.Encoding = utterance.EncodingPCM
		}

		var (
			res *utterance.Result
			err error
		)
		if synthFlags.server != "" {
			res, err = synthRemote(cmd.Context(), synthFlags.server, req)
		} else {
			res, err = synthLocal(cmd.Context(), req)
		}
		if err != nil {
			return err
		}
		if res.Error != "" {
			return errors.New(res.Error)
		}

		audio, err := base64.StdEncoding.DecodeString(res.Audio)
		if err != nil {
			return fmt.Errorf("decoding audio: %w", err)
		}
		if err := os.WriteFile(synthFlags.output, audio, 0o644); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d samples at %d Hz (engine %s)\n", synthFlags.output, res.NumSamples, res.SampleRate, res.EngineVersion)
		for _, seg := range res.Segments {
			if seg.End != nil {
				fmt.Fprintf(out, "  %-8s %.3f\n", seg.Name, *seg.End)
			} else {
				fmt.Fprintf(out, "  %-8s -\n", seg.Name)
			}
		}
		for _, w := range res.Warnings {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
		}
		return nil
	},
}

func init() {
	f := synthCmd.Flags()
	f.StringVarP(&synthFlags.voice, "voice", "v", "", "voice name (default voice when empty)")
	f.StringVarP(&synthFlags.labelFile, "label", "l", "", "full-context label file")
	f.StringVarP(&synthFlags.output, "output", "o", "out.wav", "output audio file")
	f.StringVar(&synthFlags.server, "server", "", "gRPC address of a running daemon (host:port)")
	f.IntVar(&synthFlags.sampleRate, "rate", 0, "resample output to this rate in Hz")
	f.BoolVar(&synthFlags.pcm, "pcm", false, "write raw 16-bit PCM instead of WAV")
	_ = synthCmd.MarkFlagRequired("label")
}

func synthLocal(ctx context.Context, req *utterance.Request) (*utterance.Result, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	synthesizer, loader, err := newSynthesizer(cfg)
	if err != nil {
		return nil, err
	}
	defer synthesizer.Close()

	// The label file comes from the local command line.
	d := dispatch.New(synthesizer, loader, dispatch.Options{AllowFilePaths: true})
	return d.Handle(ctx, req)
}

func synthRemote(ctx context.Context, addr string, req *utterance.Request) (*utterance.Result, error) {
	labels, err := os.ReadFile(req.LabelFile)
	if err != nil {
		return nil, fmt.Errorf("reading label file: %w", err)
	}
	req.LabelFile = ""
	req.Labels = splitLines(string(labels))

	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer cc.Close()
	return grpctransport.NewClient(cc).Synthesize(ctx, req)
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
