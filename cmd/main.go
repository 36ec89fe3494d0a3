package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"github.com/yylt/ocrmux/pkg"
	"github.com/yylt/ocrmux/pkg/encode"
	"github.com/yylt/ocrmux/pkg/serve"
	"github.com/yylt/ocrmux/pkg/store"
	"github.com/yylt/ocrmux/version"
	"k8s.io/klog/v2"
)

const sweepInterval = time.Minute

var configFlag = &cli.StringFlag{
	Name:    "config",
	Usage:   "config file path, the builtin ollama and LM Studio backends are used when empty",
	Aliases: []string{"c"},
	EnvVars: []string{"OCRMUX_CONFIG"},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve the upload page and the ocr api",
	Flags: []cli.Flag{
		configFlag,
		&cli.StringFlag{
			Name:  "address",
			Usage: "listen address, overrides the config",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := LoadConfigmap(c.String("config"))
		if err != nil {
			return err
		}
		if addr := c.String("address"); addr != "" {
			cfg.Addr = addr
		}
		set, err := NewBackends(cfg)
		if err != nil {
			return err
		}
		st, err := store.New(cfg.TempDir, cfg.Retention)
		if err != nil {
			return err
		}

		ctx := SetupSignalHandler(c.Context)
		go st.Run(ctx, sweepInterval)

		s := serve.New(ctx, &serve.Conf{Logo: cfg.Logo, Title: cfg.Title, MaxUpload: cfg.MaxUpload}, set, st)
		return s.Run(ctx, cfg.Addr)
	},
}

var ocrCommand = &cli.Command{
	Name:      "ocr",
	Usage:     "Recognize the text of one image",
	ArgsUsage: "[image file], read from stdin when omitted",
	Flags: []cli.Flag{
		configFlag,
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "backend name, the highest index backend when empty",
			Aliases: []string{"b"},
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "print the text with its line breaks",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := LoadConfigmap(c.String("config"))
		if err != nil {
			return err
		}
		set, err := NewBackends(cfg)
		if err != nil {
			return err
		}
		r, err := set.Get(c.String("backend"))
		if err != nil {
			return err
		}
		img, err := readImage(c)
		if err != nil {
			return err
		}

		text, err := r.Recognize(c.Context, img)
		if err != nil {
			if body, ok := pkg.RawBody(err); ok {
				fmt.Fprintf(c.App.ErrWriter, "Raw Response: %s\n", body)
			}
			return err
		}
		if !c.Bool("raw") {
			text = serve.Present(text)
		}
		fmt.Fprintln(c.App.Writer, text)
		return nil
	},
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print the build info",
	Action: func(c *cli.Context) error {
		version.PrintVersion(c.App.Writer)
		return nil
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ocrmux",
		Usage: "Upload an image and read its text with a local vision model",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "v",
				Usage: "log level for klog",
				Value: 0,
			},
		},
		Before: func(c *cli.Context) error {
			fs := flag.NewFlagSet("klog", flag.ContinueOnError)
			klog.InitFlags(fs)
			return fs.Set("v", strconv.Itoa(c.Int("v")))
		},
		Commands: []*cli.Command{
			serveCommand,
			ocrCommand,
			versionCommand,
		},
	}
}

func main() {
	defer klog.Flush()
	if err := newApp().Run(os.Args); err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		os.Exit(1)
	}
}

func readImage(c *cli.Context) (*encode.Image, error) {
	if fp := c.Args().First(); fp != "" {
		if !encode.Supported(fp) {
			return nil, fmt.Errorf("%w: '%s'", pkg.ErrUnsupportedImage, fp)
		}
		return encode.Load(c.Context, fp)
	}
	in := c.App.Reader
	if f, ok := in.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil, fmt.Errorf("no image given, pass a file or pipe one to stdin")
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read stdin failed: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no image given, stdin is empty")
	}
	return encode.FromBytes("stdin", raw), nil
}

// SetupSignalHandler returns a context canceled on SIGINT or SIGTERM.
func SetupSignalHandler(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	c := make(chan os.Signal, 2)
	signal.Notify(c, []os.Signal{os.Interrupt, syscall.SIGTERM}...)
	go func() {
		<-c
		klog.Infof("signal received, shutting down")
		cancel()
		<-c
		os.Exit(1)
	}()

	return ctx
}
