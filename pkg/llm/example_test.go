package llm_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/core"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/protocol/openai"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/provider/localmock"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/provider/neuralwatt"
)

// Example_decoder 展示逐块解码 SSE 字节
func Example_decoder() {
	dec := core.NewDecoder()

	for _, chunk := range []string{"data: {\"a\":", "1}\n: energy {\"energy_joules\": 2}\n", "data: [DONE]\n"} {
		events, err := dec.Feed([]byte(chunk))
		if err != nil {
			fmt.Println("Error:", err)
			return
		}
		for _, e := range events {
			fmt.Println(e.Type)
		}
	}
	// Output:
	// chunk
	// energy
	// done
}

// Example_stream 展示同步流式消费
func Example_stream() {
	body := strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		": energy {\"energy_joules\": 1.0}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n")

	stream := core.NewStream(nopCloser{body}, openai.NewChunkHandler())
	for stream.Next() {
		fmt.Println(stream.Text())
	}

	resp, err := stream.Response()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(resp.Content, resp.Energy["energy_joules"])
	// Output:
	// Hel
	// lo
	// Hello 1
}

// Example_client 展示通过客户端请求并读取能耗
func Example_client() {
	srv := localmock.New(localmock.WithFragments("Hi", "!"))
	defer srv.Close()

	client, err := neuralwatt.New(&neuralwatt.Config{APIKey: "test", BaseURL: srv.BaseURL()})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	stream, err := client.OpenStream(context.Background(), []llm.Message{llm.UserMessage("hello")}, nil)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	resp, err := stream.Consume(func(text string) { fmt.Print(text) })
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println()

	report, _ := resp.EnergyReport()
	fmt.Printf("%.2f J\n", report.Joules)
	// Output:
	// Hi!
	// 30.42 J
}

// Example_registry 展示模型别名解析
func Example_registry() {
	reg := llm.DefaultRegistry()

	fmt.Println(reg.UpstreamName("neuralwatt-gpt-oss"))
	fmt.Println(reg.UpstreamName("some/unknown-model"))
	// Output:
	// openai/gpt-oss-20b
	// some/unknown-model
}

type nopCloser struct{ *strings.Reader }

func (nopCloser) Close() error { return nil }
