package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pinwire/pinwire/sensor"
)

// RegisterSensorTools exposes the sensor registry to MCP clients.
func RegisterSensorTools(s *MCPServer, registry *sensor.Registry) {
	listSensors := mcp.NewTool("list_sensors",
		mcp.WithDescription("List the registered sensors with their connection state and latest reading"),
	)
	s.AddTool(listSensors, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		type sensorElement struct {
			Pin       string  `json:"pin"`
			Connected bool    `json:"connected"`
			LastValue float32 `json:"last_value"`
		}

		sensors := registry.List()
		res := make([]sensorElement, 0, len(sensors))
		for _, sn := range sensors {
			res = append(res, sensorElement{Pin: sn.Pin(), Connected: sn.IsConnected(), LastValue: sn.LastValue()})
		}

		jsonBytes, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	readSensor := mcp.NewTool("read_sensor",
		mcp.WithDescription("Read the latest value and history of one sensor"),
		mcp.WithString("pin",
			mcp.Required(),
			mcp.Description("The pin identifying the sensor"),
		),
	)
	s.AddTool(readSensor, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pin, err := request.RequireString("pin")
		if err != nil {
			return mcp.NewToolResultError("pin is required and must be a string"), err
		}

		sn, ok := registry.Get(pin)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("No sensor registered for pin %q", pin)), nil
		}

		detail := struct {
			Pin       string    `json:"pin"`
			Connected bool      `json:"connected"`
			LastValue float32   `json:"last_value"`
			History   []float32 `json:"history"`
		}{sn.Pin(), sn.IsConnected(), sn.LastValue(), sn.History()}

		jsonBytes, err := json.MarshalIndent(detail, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}
