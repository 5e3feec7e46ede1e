package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/codewandler/voicechat-go/tool"
)

// weatherTool exposes current conditions via open-meteo.
func weatherTool() (tool.Tool, tool.Executor) {
	def := tool.Tool{
		Type:        "function",
		Name:        "get_weather",
		Description: "Get the current weather in a given city",
		Parameters: tool.Parameters{
			Type: "object",
			Properties: tool.Properties{
				"lat":  {Type: "number", Description: "The latitude of the location to get the weather for"},
				"lng":  {Type: "number", Description: "The longitude of the location to get the weather for"},
				"city": {Type: "string", Description: "The city to get the weather for"},
			},
			Required: []string{"lat", "lng", "city"},
		},
	}

	execute := func(ctx context.Context, args map[string]any) (any, error) {
		lat, _ := args["lat"].(float64)
		lng, _ := args["lng"].(float64)
		city, _ := args["city"].(string)

		u := fmt.Sprintf(
			"https://api.open-meteo.com/v1/forecast?latitude=%f&longitude=%f&current=temperature_2m,wind_speed_10m&city=%s",
			lat, lng, url.QueryEscape(city),
		)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}

	return def, execute
}
