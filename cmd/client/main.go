package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/Brownie44l1/animelens-api/internal/client"
)

var baseURL string
var timeout time.Duration
var imagePath string

func main() {
	app := &cli.App{
		Name:  "animelens",
		Usage: "Exercise a running AnimeLens API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "url",
				Usage:       "API base URL",
				Aliases:     []string{"u"},
				Value:       "http://localhost:8000",
				EnvVars:     []string{"ANIMELENS_URL"},
				Destination: &baseURL,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "Request timeout",
				Value:       30 * time.Second,
				Destination: &timeout,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "root",
				Usage: "Call GET / and print service status",
				Action: func(ctx *cli.Context) error {
					resp, err := client.New(baseURL, timeout).Root(ctx.Context)
					if err != nil {
						return err
					}
					return printResponse(os.Stdout, "Testing root endpoint:", resp)
				},
			},
			{
				Name:      "predict",
				Usage:     "Upload an image to POST /predict",
				ArgsUsage: "--image path/to/image.jpeg",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "image",
						Usage:       "Path to the image to classify",
						Aliases:     []string{"i"},
						Required:    true,
						Destination: &imagePath,
					},
				},
				Action: func(ctx *cli.Context) error {
					resp, err := client.New(baseURL, timeout).Predict(ctx.Context, imagePath)
					if err != nil {
						return err
					}
					return printResponse(os.Stdout, "Testing predict endpoint with image: "+imagePath, resp)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printResponse indents JSON for terminals and keeps it on one line when
// piped.
func printResponse(w io.Writer, title string, resp *client.Response) error {
	body := &bytes.Buffer{}
	var err error
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		err = json.Indent(body, resp.Body, "", "  ")
	} else {
		err = json.Compact(body, resp.Body)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%s\nStatus Code: %d\nResponse: %s\n", title, resp.StatusCode, body.String())
	return err
}
