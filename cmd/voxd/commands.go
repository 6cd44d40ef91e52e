package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/voxhub/voxd/pkg/client"
)

// command holds method-style handlers bound to the global flags.
type command struct {
	global *GlobalFlags
}

func (c command) apiClient() (*client.Client, error) {
	api := client.New(client.Config{
		BaseURL: c.global.APIUrl,
		Timeout: c.global.APITimeout,
	})
	if !api.IsReachable(context.Background()) {
		return nil, fmt.Errorf("daemon not reachable at %s - start it first with 'voxd serve'", c.global.APIUrl)
	}
	return api, nil
}

func (c command) Install() error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	if err := api.Install(context.Background()); err != nil {
		return err
	}
	fmt.Println("engine runtime installed")
	return nil
}

func (c command) Start(f LaunchFlags) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	st, err := api.StartEngine(context.Background(), client.LaunchRequest{
		Host:        f.Host,
		Port:        f.Port,
		Voice:       f.Voice,
		AutoRestart: f.AutoRestart,
	})
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

func (c command) Stop() error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	if err := api.StopEngine(context.Background()); err != nil {
		return err
	}
	st, err := api.Status(context.Background())
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

func (c command) Restart(f LaunchFlags) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	st, err := api.RestartEngine(context.Background(), client.LaunchRequest{
		Host:        f.Host,
		Port:        f.Port,
		Voice:       f.Voice,
		AutoRestart: f.AutoRestart,
	})
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

func (c command) Status() error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	st, err := api.Status(context.Background())
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

func (c command) Logs(f LogsFlags) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	lines, err := api.Logs(context.Background(), f.Lines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func (c command) Voices() error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	voices, err := api.Voices(context.Background())
	if err != nil {
		return err
	}
	for _, v := range voices {
		fmt.Println(v)
	}
	return nil
}

func (c command) Speak(f SpeakFlags, args []string) error {
	text, err := speakInput(args, os.Stdin)
	if err != nil {
		return err
	}

	api, err := c.apiClient()
	if err != nil {
		return err
	}
	stream, err := api.Speak(context.Background(), client.SpeakRequest{
		Input:  text,
		Voice:  f.Voice,
		Speed:  f.Speed,
		Format: f.Format,
	})
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	var out io.Writer = os.Stdout
	if f.Out != "" {
		file, err := os.Create(f.Out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = file.Close() }()
		out = file
	}
	n, err := io.Copy(out, stream)
	if err != nil {
		return err
	}
	if f.Out != "" {
		fmt.Printf("wrote %d bytes to %s\n", n, f.Out)
	}
	return nil
}

// speakInput joins argument text, falling back to stdin when no args are given.
func speakInput(args []string, stdin io.Reader) (string, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return "", fmt.Errorf("no text to speak")
	}
	return text, nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(string(data))
}
