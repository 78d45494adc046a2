// Package neuralwatt 提供 Neuralwatt 推理 API 的 LLM Provider 实现
//
// Neuralwatt 使用 OpenAI Chat Completions 兼容协议，并在流式响应中
// 以 SSE 注释行附带请求的能耗遥测：
//
//	data: {"choices":[{"delta":{"content":"Hel"}}]}
//
//	: energy {"energy_joules": 30.42, "energy_kwh": 8.45e-06, ...}
//
//	data: [DONE]
//
// # 快速开始
//
//	client, err := neuralwatt.New(&neuralwatt.Config{
//	    APIKey: os.Getenv("NEURALWATT_API_KEY"),
//	    Model:  "neuralwatt-gpt-oss",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stream, err := client.OpenStream(ctx, []llm.Message{llm.UserMessage("hi")}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := stream.Consume(func(text string) { fmt.Print(text) })
//	fmt.Println(resp.Energy["energy_joules"])
//
// # 异步流
//
// [Client.StreamAsync] 在独立 goroutine 中消费响应，文本片段通过 channel 送出，
// 对相同的字节输入与同步流产生完全相同的结果。
//
// # 错误处理
//
// HTTP 错误状态码返回 [llm.APIError]（带 X-Request-ID），连接失败返回
// [llm.TransportError]，流中的非法行返回 [llm.DecodeError]。
package neuralwatt
