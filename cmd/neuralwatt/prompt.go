package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/provider"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/provider/neuralwatt"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/logstore"
)

const promptLongDesc string = `Send a prompt and stream the response.

The prompt is read from the arguments, or from stdin when no arguments are given.
After the response, the energy reported by the server is printed to stderr.

A stream that ends without "data: [DONE]" is accepted with a warning;
use --strict to treat it as an error.`

// errTruncated 严格模式下缺少终止符
var errTruncated = errors.New("stream ended without [DONE]")

type promptCommander struct {
	app *app

	system      string
	temperature float64
	maxTokens   int
	noStream    bool
	async       bool
	strict      bool
	usage       bool
	noLog       bool
	asJSON      bool
}

func newPromptCmd(a *app) *cobra.Command {
	c := &promptCommander{app: a}

	cmd := &cobra.Command{
		Use:   "prompt [text...]",
		Short: "Send a prompt and stream the response",
		Long:  promptLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.v.BindPFlag(keyModel, cmd.Flags().Lookup("model")); err != nil {
				return err
			}
			text, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			opts := c.options(cmd)
			return c.run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), text, opts)
		},
	}

	cmd.Flags().StringP("model", "m", llm.DefaultModel, "Model ID, alias or upstream name")
	cmd.Flags().StringVarP(&c.system, "system", "s", "", "System prompt")
	cmd.Flags().Float64VarP(&c.temperature, "temperature", "t", 0, "Sampling temperature")
	cmd.Flags().IntVar(&c.maxTokens, "max-tokens", 0, "Maximum tokens to generate")
	cmd.Flags().BoolVar(&c.noStream, "no-stream", false, "Wait for the full response instead of streaming")
	cmd.Flags().BoolVar(&c.async, "async", false, "Consume the stream in a background goroutine")
	cmd.Flags().BoolVar(&c.strict, "strict", false, "Fail when the stream ends without [DONE]")
	cmd.Flags().BoolVarP(&c.usage, "usage", "u", false, "Request and print token usage")
	cmd.Flags().BoolVar(&c.noLog, "no-log", false, "Do not record the request in the log database")
	cmd.Flags().BoolVar(&c.asJSON, "json", false, "Print the aggregated response as JSON")

	return cmd
}

func (c *promptCommander) options(cmd *cobra.Command) *llm.Options {
	opts := &llm.Options{
		System:       c.system,
		MaxTokens:    c.maxTokens,
		IncludeUsage: c.usage,
	}
	if cmd.Flags().Changed("temperature") {
		temp := c.temperature
		opts.Temperature = &temp
	}
	return opts
}

func (c *promptCommander) run(ctx context.Context, out, errOut io.Writer, text string, opts *llm.Options) error {
	cfg, err := providerConfig(c.app.v)
	if err != nil {
		return err
	}
	registry, err := loadRegistry(c.app.v)
	if err != nil {
		return err
	}

	client, err := provider.New(cfg, provider.WithLogger(c.app.logger), provider.WithRegistry(registry))
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	messages := []llm.Message{llm.UserMessage(text)}

	// --json 时不逐段输出文本
	stream := out
	if c.asJSON {
		stream = io.Discard
	}

	var resp *llm.Response
	switch {
	case c.noStream:
		resp, err = client.Complete(ctx, messages, opts)
		if err == nil {
			_, _ = io.WriteString(stream, resp.Content)
		}
	case c.async:
		resp, err = streamAsync(ctx, client, messages, opts, stream)
	default:
		resp, err = streamSync(ctx, client, messages, opts, stream)
	}
	if err != nil {
		return err
	}

	if c.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp.JSON()); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintln(out)
	}

	printSummary(errOut, resp, c.usage)

	if !c.noLog && !c.app.v.GetBool(keyNoLog) {
		c.saveLog(ctx, text, resp)
	}

	if c.strict && !resp.Terminated {
		return errTruncated
	}
	return nil
}

func streamSync(ctx context.Context, client *neuralwatt.Client, messages []llm.Message, opts *llm.Options, out io.Writer) (*llm.Response, error) {
	stream, err := client.OpenStream(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stream.Close() }()

	return stream.Consume(func(text string) {
		_, _ = io.WriteString(out, text)
	})
}

func streamAsync(ctx context.Context, client *neuralwatt.Client, messages []llm.Message, opts *llm.Options, out io.Writer) (*llm.Response, error) {
	as, err := client.StreamAsync(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	for text := range as.Fragments() {
		_, _ = io.WriteString(out, text)
	}
	return as.Wait()
}

func (c *promptCommander) saveLog(ctx context.Context, prompt string, resp *llm.Response) {
	path := c.app.v.GetString(keyLogDB)
	store, err := logstore.Open(path)
	if err != nil {
		c.app.logger.Warn("could not open log database", "path", path, "err", err)
		return
	}
	defer func() { _ = store.Close() }()

	id, err := store.Save(ctx, logstore.FromResponse(prompt, c.system, resp))
	if err != nil {
		c.app.logger.Warn("could not save log record", "err", err)
		return
	}
	c.app.logger.Debug("request logged", "id", id, "path", path)
}

// readPrompt 从参数或标准输入读取提示
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("no prompt given")
	}
	return text, nil
}

// printSummary 输出工具调用、能耗与用量摘要
func printSummary(w io.Writer, resp *llm.Response, withUsage bool) {
	for _, tc := range resp.ToolCalls {
		args, _ := json.Marshal(tc.Input)
		_, _ = fmt.Fprintf(w, "Tool call: %s %s (id %s)\n", tc.Name, args, tc.ID)
	}

	if withUsage {
		if u := resp.TokenUsage(); u != nil {
			_, _ = fmt.Fprintf(w, "Tokens: %d in, %d out, %d total\n", u.InputTokens, u.OutputTokens, u.TotalTokens)
		}
	}

	if !resp.HasEnergy() {
		_, _ = fmt.Fprintln(w, "Energy: not reported")
		return
	}

	report, err := resp.EnergyReport()
	if err != nil {
		raw, _ := json.Marshal(resp.Energy)
		_, _ = fmt.Fprintf(w, "Energy: %s\n", raw)
		return
	}
	_, _ = fmt.Fprintf(w, "Energy: %s\n", report)
}
