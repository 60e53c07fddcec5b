package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestExecuteFormatsResults(t *testing.T) {
	reg := NewToolRegistry(nil)
	reg.Register(ToolDefinition{Name: "echo"}, func(_ context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
	reg.Register(ToolDefinition{Name: "stats"}, func(context.Context, map[string]any) (any, error) {
		return map[string]any{"count": 3}, nil
	})
	reg.Register(ToolDefinition{Name: "noop"}, func(context.Context, map[string]any) (any, error) {
		return nil, nil
	})

	got := reg.Execute(context.Background(), ToolCall{Name: "echo", Input: map[string]any{"text": "hi"}})
	if got != "hi" {
		t.Errorf("string result = %q", got)
	}
	got = reg.Execute(context.Background(), ToolCall{Name: "stats"})
	if got != `{"count":3}` {
		t.Errorf("struct result = %q", got)
	}
	if got := reg.Execute(context.Background(), ToolCall{Name: "noop"}); got != "OK" {
		t.Errorf("nil result = %q", got)
	}
}

func TestExecuteHandlerErrorBecomesResultText(t *testing.T) {
	reg := NewToolRegistry(nil)
	reg.Register(ToolDefinition{Name: "flaky"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("disk full")
	})

	got := reg.Execute(context.Background(), ToolCall{Name: "flaky"})
	if got != "执行错误: disk full" {
		t.Errorf("got %q", got)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewToolRegistry(nil)
	got := reg.Execute(context.Background(), ToolCall{Name: "phantom"})
	if got != "未知工具: phantom" {
		t.Errorf("got %q", got)
	}
}

func TestExecuteTimesOut(t *testing.T) {
	reg := NewToolRegistry(nil)
	reg.SetTimeout(20 * time.Millisecond)
	reg.Register(ToolDefinition{Name: "slow"}, func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "never", nil
		}
	})

	got := reg.Execute(context.Background(), ToolCall{Name: "slow"})
	if !strings.HasPrefix(got, "执行错误: ") {
		t.Errorf("timeout not reported as failure: %q", got)
	}
}

func TestObserverSeesCallsAndResults(t *testing.T) {
	reg := NewToolRegistry(nil)
	reg.Register(ToolDefinition{Name: "echo"}, func(_ context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})

	var calls []string
	var contents []string
	observed := reg.withObserver(func(call ToolCall, content string) {
		calls = append(calls, call.Name)
		contents = append(contents, content)
	})

	observed.Execute(context.Background(), ToolCall{Name: "echo", Input: map[string]any{"text": "a"}})
	observed.Execute(context.Background(), ToolCall{Name: "missing"})

	if !reflect.DeepEqual(calls, []string{"echo", "missing"}) {
		t.Errorf("calls = %v", calls)
	}
	if contents[0] != "a" || contents[1] != "未知工具: missing" {
		t.Errorf("contents = %v", contents)
	}

	// The base registry stays observation-free.
	calls = nil
	reg.Execute(context.Background(), ToolCall{Name: "echo", Input: map[string]any{"text": "b"}})
	if len(calls) != 0 {
		t.Error("base registry leaked observations")
	}
}

func TestDescriptorsHonorPolicyAndOrder(t *testing.T) {
	reg := NewToolRegistry(nil)
	for _, name := range []string{"read", "exec", "write"} {
		reg.Register(ToolDefinition{Name: name, Description: name + " tool"}, nil)
	}

	descs := reg.Descriptors(ToolPolicy{Deny: []string{"exec"}})
	var names []string
	for _, d := range descs {
		names = append(names, d.Name)
	}
	if !reflect.DeepEqual(names, []string{"read", "write"}) {
		t.Errorf("names = %v, want registration order minus denied", names)
	}
}

func TestFormatToolOutput(t *testing.T) {
	if got := formatToolOutput([]byte("raw")); got != "raw" {
		t.Errorf("bytes = %q", got)
	}
	if got := formatToolOutput(42); got != "42" {
		t.Errorf("int = %q", got)
	}
}

func TestObjectSchema(t *testing.T) {
	schema := ObjectSchema(map[string]any{"path": StringProp("file path")}, "path")
	if schema["type"] != "object" {
		t.Errorf("type = %v", schema["type"])
	}
	req, _ := schema["required"].([]string)
	if !reflect.DeepEqual(req, []string{"path"}) {
		t.Errorf("required = %v", schema["required"])
	}
	bare := ObjectSchema(map[string]any{})
	if _, ok := bare["required"]; ok {
		t.Error("empty required list should be omitted")
	}
}
