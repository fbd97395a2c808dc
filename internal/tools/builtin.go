package tools

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// Builtin returns the stock tool set: weather, time, calculator, reminder.
// now is injected so time-dependent answers stay reproducible in tests.
func Builtin(now func() time.Time) []Tool {
	if now == nil {
		now = time.Now
	}
	reminders := &reminderStore{}
	return []Tool{
		weatherTool(),
		timeTool(now),
		calculatorTool(),
		reminderTool(now, reminders),
	}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func weatherTool() Tool {
	conditions := []string{"clear skies", "partly cloudy", "light rain", "overcast", "sunny", "scattered showers"}
	return Tool{
		Name:        "get_weather",
		Description: "Get current weather conditions for a city.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string", "description": "City name"},
			},
			"required": []string{"city"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			city := stringArg(args, "city")
			if city == "" {
				return "", fmt.Errorf("city is required")
			}
			// Deterministic stand-in conditions keyed by city; the production
			// deployment swaps this handler for a real weather API client.
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.ToLower(city)))
			sum := h.Sum32()
			cond := conditions[int(sum)%len(conditions)]
			tempC := 8 + int(sum>>8)%22
			return fmt.Sprintf("Weather in %s: %s, %d degrees Celsius.", city, cond, tempC), nil
		},
	}
}

func timeTool(now func() time.Time) Tool {
	return Tool{
		Name:        "get_time",
		Description: "Get the current time, optionally in a specific IANA timezone.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{"type": "string", "description": "IANA timezone, e.g. Europe/Rome"},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			t := now()
			if zone := stringArg(args, "timezone"); zone != "" {
				loc, err := time.LoadLocation(zone)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", zone)
				}
				t = t.In(loc)
			}
			return "The current time is " + t.Format("15:04 on Monday, January 2") + ".", nil
		},
	}
}

func calculatorTool() Tool {
	return Tool{
		Name:        "calculator",
		Description: "Evaluate a basic arithmetic expression (+, -, *, /, parentheses).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{"type": "string", "description": "Expression to evaluate"},
			},
			"required": []string{"expression"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			expr := stringArg(args, "expression")
			if expr == "" {
				return "", fmt.Errorf("expression is required")
			}
			v, err := evalExpression(expr)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s = %s", expr, formatNumber(v)), nil
		},
	}
}

type reminderStore struct {
	mu    sync.Mutex
	items []string
}

func reminderTool(now func() time.Time, store *reminderStore) Tool {
	return Tool{
		Name:        "set_reminder",
		Description: "Set a reminder with a short message.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string", "description": "What to remind about"},
				"when":    map[string]any{"type": "string", "description": "When to remind, free text"},
			},
			"required": []string{"message"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			message := stringArg(args, "message")
			if message == "" {
				return "", fmt.Errorf("message is required")
			}
			when := stringArg(args, "when")
			store.mu.Lock()
			store.items = append(store.items, message)
			store.mu.Unlock()
			if when == "" {
				return fmt.Sprintf("Reminder saved at %s: %s", now().Format("15:04"), message), nil
			}
			return fmt.Sprintf("Reminder set for %s: %s", when, message), nil
		},
	}
}

func formatNumber(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
